package cnwactivation

import (
	"context"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// AllowedClockOffset is how far the clock may appear to move backward
	// between two validations before the license reports ETimeModified.
	AllowedClockOffset = time.Hour

	// License key length bounds, in characters.
	MinLicenseKeyLength = 6
	MaxLicenseKeyLength = 256
)

// validator turns signed tokens into statuses and runs the offline state
// machine. It never talks to the network.
type validator struct {
	store    *dataStore
	verifier TokenVerifier
	system   SystemInfo
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *Metrics
}

// ValidateActivation verifies token and derives the license status from its
// claims. On a success-family result payload is replaced with the verified
// claims and marked valid, and the token is persisted. On any other result
// payload is marked invalid.
func (v *validator) ValidateActivation(ctx context.Context, token, publicKey, licenseKey, productID string, payload *ActivationPayload) Status {
	claims, err := v.verifier.Verify(token, publicKey)
	if err != nil {
		v.logger.Warn().Err(err).Str("product_id", productID).Msg("Activation token rejected")
		v.metrics.recordValidation(StatusFail)
		return StatusFail
	}
	claims.valid = false

	status := v.decide(ctx, licenseKey, productID, claims)
	v.metrics.recordValidation(status)

	if !status.IsSuccess() {
		payload.valid = false
		if err := v.recordTime(ctx, productID, claims.IssuedAt); err != nil {
			v.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to record token issue time")
		}
		return status
	}

	if err := v.recordTime(ctx, productID, v.now().Unix()); err != nil {
		v.logger.Error().Err(err).Str("product_id", productID).Msg("Failed to record validation time")
		payload.valid = false
		return StatusEStorage
	}
	if err := v.store.Save(ctx, productID, keyActivationToken, token); err != nil {
		v.logger.Error().Err(err).Str("product_id", productID).Msg("Failed to persist activation token")
		payload.valid = false
		return StatusEStorage
	}

	*payload = *claims
	payload.valid = true
	return status
}

func (v *validator) decide(ctx context.Context, licenseKey, productID string, claims *ActivationPayload) Status {
	switch {
	case claims.Key != licenseKey:
		v.logger.Warn().Str("product_id", productID).Msg("Activation token issued for a different license key")
		return StatusFail
	case claims.ProductID != productID:
		v.logger.Warn().Str("product_id", productID).Str("token_product_id", claims.ProductID).Msg("Activation token issued for a different product")
		return StatusFail
	case claims.Fingerprint != HashString(v.system.Fingerprint()):
		return StatusEMachineFingerprint
	case !v.withinOffset(claims.IssuedAt, claims.AllowedClockOffset):
		return StatusETime
	}
	return v.ValidateActivationStatus(ctx, productID, claims)
}

// ValidateActivationStatus is the offline decision over an already verified
// payload. Checks short-circuit in order: lease, grace period, expiry,
// suspension. An expired or inconsistent lease evicts the cached token.
func (v *validator) ValidateActivationStatus(ctx context.Context, productID string, payload *ActivationPayload) Status {
	now := v.now().Unix()

	if payload.LeaseExpiresAt != 0 && (payload.LeaseExpiresAt < now || payload.LeaseExpiresAt < payload.IssuedAt) {
		payload.valid = false
		if err := v.store.Reset(ctx, productID, keyActivationToken); err != nil {
			v.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to evict activation token")
		}
		v.logger.Info().Str("product_id", productID).Msg("Activation lease expired")
		return StatusFail
	}

	skipGracePeriod := payload.ServerSyncInterval == 0 || payload.ServerSyncGracePeriodExpiresAt == 0
	switch {
	case !skipGracePeriod && payload.ServerSyncGracePeriodExpiresAt < now:
		return StatusGracePeriodOver
	case payload.ExpiresAt != 0 && (payload.ExpiresAt < now || payload.ExpiresAt < payload.IssuedAt):
		return StatusExpired
	case payload.Suspended:
		return StatusSuspended
	default:
		return StatusOK
	}
}

// ValidateSystemTime is the clock-rollback guard. It fails closed when no
// watermark exists and advances the watermark on success.
func (v *validator) ValidateSystemTime(ctx context.Context, productID string) bool {
	raw, ok, err := v.store.Get(ctx, productID, keyLastRecordedTime)
	if err != nil {
		v.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to read last recorded time")
		return false
	}
	if !ok {
		return false
	}
	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v.logger.Warn().Err(err).Str("product_id", productID).Msg("Corrupt last recorded time")
		return false
	}
	if !v.withinOffset(last, int64(AllowedClockOffset/time.Second)) {
		v.logger.Warn().Str("product_id", productID).Int64("last_recorded", last).Msg("System clock moved backward")
		return false
	}
	if err := v.recordTime(ctx, productID, v.now().Unix()); err != nil {
		v.logger.Warn().Err(err).Str("product_id", productID).Msg("Failed to advance last recorded time")
	}
	return true
}

// withinOffset reports whether timestamp is at most offset seconds ahead of now.
func (v *validator) withinOffset(timestamp, offset int64) bool {
	return timestamp-v.now().Unix() <= offset
}

// recordTime ratchets the last-recorded-time watermark: it never moves backward.
func (v *validator) recordTime(ctx context.Context, productID string, ts int64) error {
	raw, ok, err := v.store.Get(ctx, productID, keyLastRecordedTime)
	if err != nil {
		return err
	}
	if ok {
		if last, err := strconv.ParseInt(raw, 10, 64); err == nil && last >= ts {
			return nil
		}
	}
	return v.store.Save(ctx, productID, keyLastRecordedTime, strconv.FormatInt(ts, 10))
}

// ValidateServerSyncAllowedStatusCodes reports whether a background sync may
// continue after status. Authoritative answers (OK, EXPIRED, SUSPENDED) and
// transient failures (EInet, ERateLimit, EServer) keep the timer running.
func ValidateServerSyncAllowedStatusCodes(s Status) bool {
	switch s {
	case StatusOK, StatusExpired, StatusSuspended:
		return true
	case StatusEInet, StatusERateLimit, StatusEServer:
		return true
	}
	return false
}

// ValidateSuccessCode reports whether s belongs to the success family.
func ValidateSuccessCode(s Status) bool {
	return s.IsSuccess()
}

// ValidateProductID reports whether id is a well-formed product id (a UUID).
func ValidateProductID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidateLicenseKey reports whether key has an acceptable length.
func ValidateLicenseKey(key string) bool {
	n := utf8.RuneCountInString(key)
	return n >= MinLicenseKeyLength && n <= MaxLicenseKeyLength
}
