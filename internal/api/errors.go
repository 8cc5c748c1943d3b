package api

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure: no HTTP response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response other than 401.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	// Detail is the backend's {"detail": "..."} message when present.
	Detail string
}

func (e *UpstreamError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, msg)
}

// AuthRequiredError means the operation needs a credential: either none was
// available (Status 0, no request sent) or the backend answered 401.
type AuthRequiredError struct {
	Op     string
	Status int
}

func (e *AuthRequiredError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: sign-in required (http %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: sign-in required", e.Op)
}

// ValidationError is a client-side precondition failure; nothing was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsAuthRequired(err error) bool {
	var ae *AuthRequiredError
	return errors.As(err, &ae)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	var ae *AuthRequiredError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
