package l402

import (
	"fmt"
	"net/http"
)

// ProtocolError is an L402-specific failure. Status carries the HTTP status
// code the failure maps to, so framework bindings translate errors uniformly.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a ProtocolError with the same code, making
// sentinel comparisons via errors.Is work across wrapped instances.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Code == e.Code
}

// Common error codes.
const (
	ErrCodeInvoiceGeneration = "invoice_generation_failed"
	ErrCodeMalformedHeader   = "malformed_authorization"
	ErrCodeCredentialDecode  = "credential_decode_failed"
	ErrCodeVerification      = "verification_failed"
	ErrCodeAlreadyUsed       = "credential_already_used"
)

// Sentinels for errors.Is checks: 500 for issuance failures, 400 for
// malformed input, 403 for anything failing verification.
var (
	ErrInvoiceGeneration = &ProtocolError{Code: ErrCodeInvoiceGeneration, Message: "couldn't generate invoice", Status: http.StatusInternalServerError}
	ErrMalformedHeader   = &ProtocolError{Code: ErrCodeMalformedHeader, Message: "invalid L402 key format", Status: http.StatusBadRequest}
	ErrCredentialDecode  = &ProtocolError{Code: ErrCodeCredentialDecode, Message: "couldn't deserialize macaroon", Status: http.StatusBadRequest}
	ErrVerification      = &ProtocolError{Code: ErrCodeVerification, Message: "invalid macaroon or preimage", Status: http.StatusForbidden}
	ErrAlreadyUsed       = &ProtocolError{Code: ErrCodeAlreadyUsed, Message: "macaroon is only valid once", Status: http.StatusForbidden}
)

// protocolErrorf derives a new error from a sentinel, keeping its code and
// status but replacing the message with request-specific detail.
func protocolErrorf(sentinel *ProtocolError, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
		Status:  sentinel.Status,
	}
}
