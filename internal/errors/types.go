package errors

import "fmt"

// APIError represents a normalized failure from the mail service or the gateway.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
	Type       string
	Details    map[string]interface{}
}

// Error renders as "HTTP <status>: <message>" so substring classification sees
// both the status code and the upstream text.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.HTTPStatus, e.Message)
	}
	return e.Message
}

// ErrorEnvelope is the JSON error body returned by the gateway.
type ErrorEnvelope struct {
	Error struct {
		Message string                 `json:"message"`
		Type    string                 `json:"type"`
		Code    string                 `json:"code,omitempty"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// New builds an APIError.
func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

// WithDetails attaches structured details.
func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// Envelope converts the error into its wire form.
func (e *APIError) Envelope() ErrorEnvelope {
	var env ErrorEnvelope
	env.Error.Message = e.Message
	env.Error.Type = e.Type
	env.Error.Code = e.Code
	env.Error.Details = e.Details
	return env
}

// IsCritical reports errors that implicate the key itself.
func (e *APIError) IsCritical() bool {
	switch e.Code {
	case "invalid_api_key", "permission_denied":
		return true
	}
	return false
}
