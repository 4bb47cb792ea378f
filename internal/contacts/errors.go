package contacts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the referenced contact does not exist, typically
// because another client already removed it.
var ErrNotFound = errors.New("contacts: contact not found")

// FieldViolation names one invalid input field and why it was rejected.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every violated field of a mutation input.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		fields = append(fields, violation.Field)
	}
	return fmt.Sprintf("contacts: invalid input: %s", strings.Join(fields, ", "))
}

// ConflictError reports an email address already owned by another contact.
type ConflictError struct {
	Email string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("contacts: email already exists: %s", e.Email)
}

// ServiceError wraps unexpected persistence failures with a dotted
// operation code for logs and 500 responses.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code, e.g. "contacts.list.query_failed".
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
