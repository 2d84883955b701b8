package types

import "fmt"

// NetworkError is the structured error returned by the protocol layer.
// Errors compare equal under errors.Is when their codes match.
type NetworkError struct {
	Code    int
	Message string
	Err     error
}

func (e NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error (code=%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("network error (code=%d): %s", e.Code, e.Message)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

func (e NetworkError) Is(target error) bool {
	t, ok := target.(NetworkError)
	return ok && t.Code == e.Code
}

// Network error codes
const (
	ErrCodeMalformedHeader = iota + 1000
	ErrCodeChecksumMismatch
	ErrCodeUnknownOpcode
	ErrCodeSendFailure
	ErrCodeBindFailure
	ErrCodeMalformedPayload
	ErrCodePayloadTooLarge
	ErrCodeAlreadyStarted
	ErrCodeNotStarted
	ErrCodeConfig
)

// Sentinels for errors.Is
var (
	ErrMalformedHeader  = NetworkError{Code: ErrCodeMalformedHeader, Message: "malformed header"}
	ErrChecksumMismatch = NetworkError{Code: ErrCodeChecksumMismatch, Message: "checksum mismatch"}
	ErrUnknownOpcode    = NetworkError{Code: ErrCodeUnknownOpcode, Message: "unknown opcode"}
	ErrSendFailure      = NetworkError{Code: ErrCodeSendFailure, Message: "send failed"}
	ErrBindFailure      = NetworkError{Code: ErrCodeBindFailure, Message: "bind failed"}
	ErrMalformedPayload = NetworkError{Code: ErrCodeMalformedPayload, Message: "malformed payload"}
	ErrPayloadTooLarge  = NetworkError{Code: ErrCodePayloadTooLarge, Message: "payload too large"}
	ErrAlreadyStarted   = NetworkError{Code: ErrCodeAlreadyStarted, Message: "node already started"}
	ErrNotStarted       = NetworkError{Code: ErrCodeNotStarted, Message: "node not started"}
	ErrInvalidConfig    = NetworkError{Code: ErrCodeConfig, Message: "invalid configuration"}
)

// NewError builds a NetworkError of the given code with a specific message
func NewError(code int, message string, cause error) NetworkError {
	return NetworkError{Code: code, Message: message, Err: cause}
}
