package cnwactivation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for configuration misuse. They are returned instead of a
// plain Status because the caller must fix the program, not retry.
var (
	ErrInvalidProductID  = errors.New("invalid product id")
	ErrPublicKeyNotSet   = errors.New("public key not set")
	ErrLicenseKeyNotSet  = errors.New("license key not set")
	ErrInvalidLicenseKey = errors.New("invalid license key")
	ErrPublicKeyFile     = errors.New("public key file not readable")
)

// Sentinel errors for token verification.
var (
	ErrSignatureInvalid = errors.New("signature verification failed")
	ErrPublicKeyInvalid = errors.New("invalid public key")
	ErrTokenMalformed   = errors.New("malformed activation token")
)

// ErrOfflineResponseInvalid is returned when an offline activation response
// file cannot be parsed.
var ErrOfflineResponseInvalid = errors.New("invalid offline response file format")

var misuseStatus = map[error]Status{
	ErrInvalidProductID:  StatusEProductID,
	ErrPublicKeyNotSet:   StatusEPublicKey,
	ErrLicenseKeyNotSet:  StatusELicenseKey,
	ErrInvalidLicenseKey: StatusELicenseKey,
	ErrPublicKeyFile:     StatusEFilePath,
	ErrPublicKeyInvalid:  StatusEPublicKey,
}

// misuse wraps a configuration sentinel so callers can match it with
// errors.Is and still recover the Status with StatusOf.
func misuse(sentinel error) error {
	return &mappedError{sentinel: sentinel, status: misuseStatus[sentinel]}
}

// mappedError wraps a sentinel error with the status it corresponds to.
type mappedError struct {
	sentinel error
	status   Status
}

func (e *mappedError) Error() string {
	return e.sentinel.Error()
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target interface{}) bool {
	if t, ok := target.(**StatusError); ok {
		*t = &StatusError{Status: e.status}
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}

// ServerError represents an error response from the licensing server.
// The server returns errors in the format: {"code": "...", "message": "..."}.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// parseServerError decodes the server error body. Bodies that are not JSON
// keep the raw text as the message and code UNKNOWN.
func parseServerError(statusCode int, body []byte) *ServerError {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &ServerError{
			StatusCode: statusCode,
			Code:       "UNKNOWN",
			Message:    string(body),
		}
	}
	return &ServerError{
		StatusCode: statusCode,
		Code:       errResp.Code,
		Message:    errResp.Message,
	}
}
