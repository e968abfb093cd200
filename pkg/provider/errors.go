package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass categorizes adapter failures.
type ErrorClass string

const (
	ErrCredentialMissing ErrorClass = "credential_missing"
	ErrTransport         ErrorClass = "transport"
	ErrProtocol          ErrorClass = "protocol"
	ErrDecoding          ErrorClass = "decoding"
	ErrNoUsableData      ErrorClass = "no_usable_data"
)

// FetchError is the typed error returned by provider adapters.
type FetchError struct {
	Class   ErrorClass
	Status  int // HTTP status for protocol errors, 0 otherwise
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (HTTP %d): %s", e.Class, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s (HTTP %d)", e.Class, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Class, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return string(e.Class)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AuthRelated reports whether the error indicates a credential problem.
// Those are preferred over generic failures when a candidate chain is
// exhausted, since they are actionable for the caller.
func (e *FetchError) AuthRelated() bool {
	if e.Class == ErrCredentialMissing {
		return true
	}
	return e.Class == ErrProtocol && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// ErrMissingCredential builds the error for an empty credential string.
func ErrMissingCredential() *FetchError {
	return &FetchError{Class: ErrCredentialMissing, Message: "account has no credential"}
}

// TransportError wraps a network failure or timeout.
func TransportError(err error) *FetchError {
	return &FetchError{Class: ErrTransport, Err: err}
}

// ProtocolError builds the error for a non-success HTTP status. msg may
// carry the provider's own error message when one was decodable.
func ProtocolError(status int, msg string) *FetchError {
	return &FetchError{Class: ErrProtocol, Status: status, Message: msg}
}

// DecodingError wraps a structurally unexpected payload.
func DecodingError(err error) *FetchError {
	return &FetchError{Class: ErrDecoding, Err: err}
}

// ErrNoData is returned when every candidate yielded nothing plausible.
func ErrNoData() *FetchError {
	return &FetchError{Class: ErrNoUsableData, Message: "no usable quota data from any endpoint"}
}

// AsFetchError extracts a *FetchError from err if present.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
