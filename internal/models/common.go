package models

// ErrorDetail provides a structured way to represent an error at the service boundary.
type ErrorDetail struct {
	// Code is a JSON-RPC or application-specific error code.
	Code int `json:"code"`
	// Message is a short human-readable summary.
	Message string `json:"message"`
	// Data holds machine-readable context: filename, operation, type and details.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Type returns the machine-readable error kind stored in Data, if any.
func (e *ErrorDetail) Type() string {
	if e == nil || e.Data == nil {
		return ""
	}
	t, _ := e.Data["type"].(string)
	return t
}

// ErrorResponse wraps an ErrorDetail for HTTP responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
