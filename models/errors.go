package models

import "errors"

// Error kinds surfaced in the API envelope. Clients branch on Kind,
// never on Message.
const (
	ErrKindValidation         = "ValidationError"
	ErrKindRateLimited        = "RateLimited"
	ErrKindNotFound           = "NotFound"
	ErrKindStorageUnavailable = "StorageUnavailable"
	ErrKindInternal           = "Internal"
)

// Sentinel errors shared between the store and the serving layer.
var (
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// APIError is the machine-readable error half of the response envelope.
type APIError struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// APIResponse is the envelope every endpoint responds with.
type APIResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	NextCursor int64       `json:"next_cursor,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data interface{}) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// Fail wraps an error kind and message in a failure envelope.
func Fail(kind, message string) APIResponse {
	return APIResponse{Success: false, Error: &APIError{Kind: kind, Message: message}}
}
