package models

// ErrorKind classifies API failures for the error envelope.
type ErrorKind string

const (
	ErrKindValidation          ErrorKind = "VALIDATION"
	ErrKindNotFound            ErrorKind = "NOT_FOUND"
	ErrKindExtractionFailed    ErrorKind = "EXTRACTION_FAILED"
	ErrKindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrKindUpstreamTimeout     ErrorKind = "UPSTREAM_TIMEOUT"
	ErrKindStoreFailure        ErrorKind = "STORE_FAILURE"
	ErrKindIndexFailure        ErrorKind = "INDEX_FAILURE"
	ErrKindDuplicate           ErrorKind = "DUPLICATE"
	ErrKindInternal            ErrorKind = "INTERNAL"
)

// APIError is the body of every non-2xx response: {"error": {"kind", "message"}}.
type APIError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ErrorEnvelope wraps an APIError for JSON serialization
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewErrorEnvelope builds the standard error envelope
func NewErrorEnvelope(kind ErrorKind, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{Kind: kind, Message: message}}
}
