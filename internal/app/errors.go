package app

import (
	"fmt"
	"net/http"
)

// DomainError is the boundary error type. Visibility failures are
// deliberately issued as NOT_FOUND, never FORBIDDEN, so a hidden resource is
// indistinguishable from an absent one.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func errConflict(code, message string) *DomainError {
	return domainError(http.StatusConflict, code, message, nil)
}

// errCascade reports a multi-step delete whose later step failed after an
// earlier step committed. Nothing is rolled back; the orphan cleanup is owed.
func errCascade(step string, cause error) *DomainError {
	return domainError(http.StatusInternalServerError, "CASCADE_FAILURE",
		fmt.Sprintf("cascade step %s failed: %v", step, cause), nil)
}
