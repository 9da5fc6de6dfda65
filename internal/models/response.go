package models

// ErrorResponse is the caller-facing body for any failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// NewErrorResponse creates an ErrorResponse with Success false
func NewErrorResponse(message string, code int) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	}
}
