package cnwactivation

import (
	"errors"
	"fmt"
)

// Status is the outcome of every license operation. The set is closed: callers
// switch on it rather than inspecting error strings.
//
// Numeric values match the LexActivator status numbering.
type Status int

// Success family.
const (
	StatusOK              Status = 0
	StatusExpired         Status = 20
	StatusSuspended       Status = 21
	StatusGracePeriodOver Status = 22
	StatusTrialExpired    Status = 25
)

// Failure family.
const (
	StatusFail Status = 1

	StatusEFilePath                       Status = 40
	StatusEProductID                      Status = 43
	StatusEPublicKey                      Status = 44
	StatusEStorage                        Status = 45
	StatusETime                           Status = 47
	StatusEInet                           Status = 48
	StatusERevoked                        Status = 53
	StatusELicenseKey                     Status = 54
	StatusELicenseType                    Status = 55
	StatusEOfflineResponseFile            Status = 56
	StatusEActivationLimit                Status = 58
	StatusEActivationNotFound             Status = 59
	StatusEDeactivationLimit              Status = 60
	StatusEMachineFingerprint             Status = 63
	StatusEMetadataKeyNotFound            Status = 68
	StatusETimeModified                   Status = 69
	StatusEAuthenticationFailed           Status = 71
	StatusEMeterAttributeNotFound         Status = 72
	StatusEMeterAttributeUsesLimitReached Status = 73
	StatusEVM                             Status = 80
	StatusECountry                        Status = 81
	StatusEIP                             Status = 82
	StatusERateLimit                      Status = 90
	StatusEServer                         Status = 91
	StatusEClient                         Status = 92
)

var statusNames = map[Status]string{
	StatusOK:                              "OK",
	StatusFail:                            "FAIL",
	StatusExpired:                         "EXPIRED",
	StatusSuspended:                       "SUSPENDED",
	StatusGracePeriodOver:                 "GRACE_PERIOD_OVER",
	StatusTrialExpired:                    "TRIAL_EXPIRED",
	StatusEFilePath:                       "E_FILE_PATH",
	StatusEProductID:                      "E_PRODUCT_ID",
	StatusEPublicKey:                      "E_PUBLIC_KEY",
	StatusEStorage:                        "E_STORAGE",
	StatusETime:                           "E_TIME",
	StatusEInet:                           "E_INET",
	StatusERevoked:                        "E_REVOKED",
	StatusELicenseKey:                     "E_LICENSE_KEY",
	StatusELicenseType:                    "E_LICENSE_TYPE",
	StatusEOfflineResponseFile:            "E_OFFLINE_RESPONSE_FILE",
	StatusEActivationLimit:                "E_ACTIVATION_LIMIT",
	StatusEActivationNotFound:             "E_ACTIVATION_NOT_FOUND",
	StatusEDeactivationLimit:              "E_DEACTIVATION_LIMIT",
	StatusEMachineFingerprint:             "E_MACHINE_FINGERPRINT",
	StatusEMetadataKeyNotFound:            "E_METADATA_KEY_NOT_FOUND",
	StatusETimeModified:                   "E_TIME_MODIFIED",
	StatusEAuthenticationFailed:           "E_AUTHENTICATION_FAILED",
	StatusEMeterAttributeNotFound:         "E_METER_ATTRIBUTE_NOT_FOUND",
	StatusEMeterAttributeUsesLimitReached: "E_METER_ATTRIBUTE_USES_LIMIT_REACHED",
	StatusEVM:                             "E_VM",
	StatusECountry:                        "E_COUNTRY",
	StatusEIP:                             "E_IP",
	StatusERateLimit:                      "E_RATE_LIMIT",
	StatusEServer:                         "E_SERVER",
	StatusEClient:                         "E_CLIENT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// IsSuccess reports whether s belongs to the success family: the license is
// activated and its token verified, even if it is expired or suspended.
func (s Status) IsSuccess() bool {
	switch s {
	case StatusOK, StatusExpired, StatusSuspended, StatusGracePeriodOver, StatusTrialExpired:
		return true
	}
	return false
}

// StatusError carries a non-success Status through an error return.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "license status " + e.Status.String()
}

// Is matches another *StatusError with the same status, so
// errors.Is(err, &StatusError{Status: StatusERevoked}) works.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

func statusError(s Status) error {
	return &StatusError{Status: s}
}

// StatusOf extracts the Status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
