package vapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse indicates the service returned a body that does not
// match its documented shape.
var ErrMalformedResponse = errors.New("malformed call-service response")

// PlacementError indicates the service rejected a call-placement request.
type PlacementError struct {
	StatusCode int
	Body       string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("call service error %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether retrying the same request could succeed.
// Rate limiting and server errors are transient; everything else (bad
// credentials, invalid number) is not.
func (e *PlacementError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
