package chessdto

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DomainError carries a stable code to clients next to a readable message.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chessnerd service error"
}

func (e DomainError) Response() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Error()}
}
