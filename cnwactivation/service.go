package cnwactivation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Error codes returned by the licensing server in {"code": "..."}.
const (
	CodeActivationLimitReached         = "ACTIVATION_LIMIT_REACHED"
	CodeInvalidActivationFingerprint   = "INVALID_ACTIVATION_FINGERPRINT"
	CodeVMActivationNotAllowed         = "VM_ACTIVATION_NOT_ALLOWED"
	CodeInvalidProductID               = "INVALID_PRODUCT_ID"
	CodeInvalidLicenseKey              = "INVALID_LICENSE_KEY"
	CodeAuthenticationFailed           = "AUTHENTICATION_FAILED"
	CodeCountryNotAllowed              = "COUNTRY_NOT_ALLOWED"
	CodeIPAddressNotAllowed            = "IP_ADDRESS_NOT_ALLOWED"
	CodeRevokedLicense                 = "REVOKED_LICENSE"
	CodeInvalidLicenseType             = "INVALID_LICENSE_TYPE"
	CodeMeterAttributeUsesLimitReached = "METER_ATTRIBUTE_USES_LIMIT_REACHED"
	CodeDeactivationLimitReached       = "DEACTIVATION_LIMIT_REACHED"
)

// badRequestRule maps a 400 error code to a status and whether the cached
// token must be evicted.
type badRequestRule struct {
	status Status
	evict  bool
}

var badRequestRules = map[string]badRequestRule{
	CodeActivationLimitReached:         {StatusEActivationLimit, false},
	CodeInvalidActivationFingerprint:   {StatusEMachineFingerprint, true},
	CodeVMActivationNotAllowed:         {StatusEVM, true},
	CodeInvalidProductID:               {StatusEProductID, true},
	CodeInvalidLicenseKey:              {StatusELicenseKey, true},
	CodeAuthenticationFailed:           {StatusEAuthenticationFailed, true},
	CodeCountryNotAllowed:              {StatusECountry, true},
	CodeIPAddressNotAllowed:            {StatusEIP, true},
	CodeRevokedLicense:                 {StatusERevoked, true},
	CodeInvalidLicenseType:             {StatusELicenseType, true},
	CodeMeterAttributeUsesLimitReached: {StatusEMeterAttributeUsesLimitReached, false},
}

// activationService runs the create/update/delete activation protocol.
// Server responses are never trusted directly: only the signed token they
// carry is, and only after the validator verifies it.
type activationService struct {
	store         *dataStore
	validator     *validator
	transport     Transport
	system        SystemInfo
	appVersion    string
	clientVersion string
	logger        zerolog.Logger
	metrics       *Metrics
}

// activateFromServer creates an activation, or with isSync updates the
// activation payload.ID refers to. Transport failure returns EInet and leaves
// local state alone.
func (s *activationService) activateFromServer(ctx context.Context, productID, licenseKey, publicKey string, payload *ActivationPayload, meterAttributes []ActivationMeterAttribute, isSync bool) Status {
	operation := "activate"
	if isSync {
		operation = "sync"
	}

	body, err := json.Marshal(s.buildActivationRequest(productID, licenseKey, nil, meterAttributes))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode activation request")
		return StatusEClient
	}

	var resp *Response
	if isSync {
		resp, err = s.transport.UpdateActivation(ctx, payload.ID, body)
	} else {
		resp, err = s.transport.CreateActivation(ctx, body)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Str("operation", operation).Msg("Licensing server unreachable")
		s.metrics.recordServerRequest(operation, StatusEInet)
		return StatusEInet
	}

	if !resp.Success() {
		status := s.activationErrorHandler(ctx, productID, resp)
		s.metrics.recordServerRequest(operation, status)
		return status
	}

	var ar activationResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil || ar.ActivationToken == "" {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("Activation response carried no token")
		s.metrics.recordServerRequest(operation, StatusFail)
		return StatusFail
	}

	status := s.validator.ValidateActivation(ctx, ar.ActivationToken, publicKey, licenseKey, productID, payload)
	s.metrics.recordServerRequest(operation, status)
	return status
}

// activationErrorHandler classifies a non-2xx activation response, evicting
// the cached token when the rejection is authoritative.
func (s *activationService) activationErrorHandler(ctx context.Context, productID string, resp *Response) Status {
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return StatusEServer
	case http.StatusTooManyRequests:
		return StatusERateLimit
	case http.StatusNotFound:
		s.evict(ctx, productID)
		return StatusEActivationNotFound
	case http.StatusBadRequest:
		se := parseServerError(resp.StatusCode, resp.Body)
		rule, ok := badRequestRules[se.Code]
		if !ok {
			s.logger.Warn().Str("product_id", productID).Str("code", se.Code).Str("message", se.Message).Msg("Activation request rejected")
			return StatusEClient
		}
		if rule.evict {
			s.evict(ctx, productID)
		}
		s.logger.Info().Str("product_id", productID).Str("code", se.Code).Msg("Activation rejected by server")
		return rule.status
	}
	return StatusEInet
}

// deactivateFromServer deletes the activation. On success the payload is
// invalidated and the product's license key and token are cleared.
func (s *activationService) deactivateFromServer(ctx context.Context, productID string, payload *ActivationPayload) Status {
	resp, err := s.transport.DeleteActivation(ctx, payload.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("Licensing server unreachable")
		s.metrics.recordServerRequest("deactivate", StatusEInet)
		return StatusEInet
	}
	if !resp.Success() {
		status := s.deactivationErrorHandler(ctx, productID, resp)
		s.metrics.recordServerRequest("deactivate", status)
		return status
	}

	payload.valid = false
	if err := s.store.ResetAll(ctx, productID); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to clear local license state")
	}
	s.metrics.recordServerRequest("deactivate", StatusOK)
	return StatusOK
}

func (s *activationService) deactivationErrorHandler(ctx context.Context, productID string, resp *Response) Status {
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return StatusEServer
	case http.StatusTooManyRequests:
		return StatusERateLimit
	case http.StatusNotFound:
		s.evict(ctx, productID)
		return StatusEActivationNotFound
	case http.StatusConflict:
		if parseServerError(resp.StatusCode, resp.Body).Code == CodeDeactivationLimitReached {
			return StatusEDeactivationLimit
		}
	}
	return StatusEClient
}

func (s *activationService) evict(ctx context.Context, productID string) {
	if err := s.store.Reset(ctx, productID, keyActivationToken); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to evict activation token")
	}
}

func (s *activationService) buildActivationRequest(productID, licenseKey string, metadata []Metadata, meterAttributes []ActivationMeterAttribute) activationRequest {
	if metadata == nil {
		metadata = []Metadata{}
	}
	if meterAttributes == nil {
		meterAttributes = []ActivationMeterAttribute{}
	}
	return activationRequest{
		Fingerprint:     HashString(s.system.Fingerprint()),
		ProductID:       productID,
		Key:             licenseKey,
		OS:              s.system.OSName(),
		OSVersion:       s.system.OSVersion(),
		UserHash:        HashString(s.system.User()),
		AppVersion:      s.appVersion,
		ClientVersion:   s.clientVersion,
		VMName:          s.system.VMName(),
		Hostname:        s.system.Hostname(),
		Metadata:        metadata,
		MeterAttributes: meterAttributes,
	}
}

// findMetadata looks key up case-insensitively.
func findMetadata(key string, metadata []Metadata) (string, bool) {
	for _, m := range metadata {
		if strings.EqualFold(m.Key, key) {
			return m.Value, true
		}
	}
	return "", false
}

// findLicenseMeterAttribute looks name up case-insensitively. The returned
// attribute carries the caller's spelling of the name.
func findLicenseMeterAttribute(name string, attrs []LicenseMeterAttribute) (LicenseMeterAttribute, bool) {
	for _, a := range attrs {
		if strings.EqualFold(a.Name, name) {
			return LicenseMeterAttribute{Name: name, AllowedUses: a.AllowedUses, TotalUses: a.TotalUses}, true
		}
	}
	return LicenseMeterAttribute{}, false
}
