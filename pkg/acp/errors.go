package acp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPaymentDeclined is returned by CompleteSession when the merchant declined
// the payment and moved the session back to not_ready_for_payment.
var ErrPaymentDeclined = errors.New("acp: payment declined")

// APIError is returned when the merchant responds with a non-2xx status
type APIError struct {
	StatusCode int
	Body       string
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("acp api %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("acp api %d: %s", e.StatusCode, e.Body)
}

// ErrorBody is the merchant's error envelope
type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Type = eb.Type
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
	}
	return apiErr
}

// IsUnauthorized reports whether err is a 401 from the merchant
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}
