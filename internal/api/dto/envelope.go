package dto

// Envelope is the uniform response shape: {"success":true,"data":...} on
// success, {"success":false,"error":...} on failure.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success wraps a payload in the success envelope.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure wraps an error message in the failure envelope.
func Failure(message string) Envelope {
	return Envelope{Success: false, Error: message}
}
