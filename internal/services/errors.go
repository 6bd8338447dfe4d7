package services

import "fmt"

// Outcome codes surfaced to callers. Handlers map these onto HTTP statuses;
// batch ingestion reports them per item.
const (
	CodeValidation  = "validation_failed"
	CodePolicy      = "policy_violation"
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodeConflict    = "in_flight"
	CodeInternal    = "internal"
)

// DomainError carries an outcome code alongside the message so the transport
// layer never has to string-match errors.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func ValidationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func PolicyError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodePolicy, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the outcome code, defaulting to internal for plain errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := err.(*DomainError); ok {
		return de.Code
	}
	return CodeInternal
}
