package ucp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotDiscovered is returned when a call needs a profile and Discover has not succeeded
	ErrNotDiscovered = errors.New("ucp: merchant not discovered")

	// ErrTransportUnavailable is returned when the requested transport has no endpoint
	ErrTransportUnavailable = errors.New("ucp: transport unavailable")

	// ErrInvalidProfile is wrapped by DiscoveryError when a 2xx JSON document is not a profile
	ErrInvalidProfile = errors.New("ucp: profile has no root ucp object")
)

// DiscoveryError reports that no probed URL produced a valid profile
type DiscoveryError struct {
	Domain   string
	Attempts []string
	Err      error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("ucp: discovery failed for %s after %d attempt(s) [%s]", e.Domain, len(e.Attempts), strings.Join(e.Attempts, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx REST response
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ucp: %s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
