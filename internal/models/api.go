// Package models defines API request and response envelopes for grievanced.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ChatRequest is the body of POST /chat. SessionID is optional; the server
// mints one when absent and the client echoes it on subsequent turns.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the reply for one processed chat turn.
type ChatResponse struct {
	SessionID   string       `json:"session_id"`
	Intent      Intent       `json:"intent"`
	Phase       SessionPhase `json:"phase"`
	Reply       string       `json:"reply"`
	ComplaintID string       `json:"complaint_id,omitempty"`
}

// StatusUpdateRequest is the body of POST /complaints/{id}/status.
type StatusUpdateRequest struct {
	Status ComplaintStatus `json:"status"`
}
