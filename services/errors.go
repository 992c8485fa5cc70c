package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeMalformedInput   ErrorType = "malformed_input"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeAuditWrite       ErrorType = "audit_write"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeInternal         ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Compare with errors.Is; never mutate them.
var (
	ErrInvalidRequest   = NewDomainError(ErrorTypeValidation, "invalid request", nil)
	ErrMalformedInput   = NewDomainError(ErrorTypeMalformedInput, "request body is not a JSON object", nil)
	ErrProfileNotFound  = NewDomainError(ErrorTypeNotFound, "profile not found", nil)
	ErrStoreUnavailable = NewDomainError(ErrorTypeStoreUnavailable, "permission store unavailable", nil)
	ErrAuditWrite       = NewDomainError(ErrorTypeAuditWrite, "audit write failed", nil)
	ErrUnauthorized     = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInternal         = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsMalformedInputError checks if an error is a malformed input error
func IsMalformedInputError(err error) bool {
	return GetErrorType(err) == ErrorTypeMalformedInput
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsStoreUnavailableError checks if an error is a backing store failure
func IsStoreUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeStoreUnavailable
}

// IsAuditWriteError checks if an error is an audit persistence failure
func IsAuditWriteError(err error) bool {
	return GetErrorType(err) == ErrorTypeAuditWrite
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// NewValidationError builds a validation error carrying per-field messages
func NewValidationError(message string, fields map[string]string) *DomainError {
	e := NewDomainError(ErrorTypeValidation, message, nil)
	for field, msg := range fields {
		e.WithDetail(field, msg)
	}
	return e
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapMalformed wraps a decoding failure as malformed input
func WrapMalformed(message string, err error) error {
	return NewDomainError(ErrorTypeMalformedInput, message, err)
}

// WrapStoreUnavailable wraps a backing store failure
func WrapStoreUnavailable(message string, err error) error {
	return NewDomainError(ErrorTypeStoreUnavailable, message, err)
}

// WrapAuditWrite wraps an audit persistence failure
func WrapAuditWrite(message string, err error) error {
	return NewDomainError(ErrorTypeAuditWrite, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
