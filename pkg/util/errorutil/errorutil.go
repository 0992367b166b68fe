package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API callers.
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
	CodeNotEligible          = "NOT_ELIGIBLE"
	CodeElectionNotOpen      = "ELECTION_NOT_OPEN"
	CodeAlreadyIssued        = "ALREADY_ISSUED"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeExpired              = "EXPIRED"
	CodeAlreadyUsed          = "ALREADY_USED"
	CodeInvalidContent       = "INVALID_CONTENT"
	CodeRegistrationFailed   = "REGISTRATION_FAILED"
	CodeReconciliationFailed = "RECONCILIATION_FAILED"
	CodeRateLimited          = "RATE_LIMITED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	// RetryAfter is a hint in seconds for retryable errors; zero means none.
	RetryAfter int
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNotEligible reports a caller who may not take part in an election.
func NewNotEligible(reason string) error {
	return NewDomainError(CodeNotEligible, "caller is not eligible for this election", http.StatusForbidden,
		map[string]any{"reason": reason})
}

// NewElectionNotOpen reports a wrong status or a request outside the voting window.
func NewElectionNotOpen(message string) error {
	return NewDomainError(CodeElectionNotOpen, message, http.StatusConflict, nil)
}

func NewAlreadyIssued() error {
	return NewDomainError(CodeAlreadyIssued,
		"a voting token was already issued for this election; it is only shown once", http.StatusConflict, nil)
}

func NewInvalidToken() error {
	return NewDomainError(CodeInvalidToken, "voting token not recognised", http.StatusNotFound, nil)
}

func NewExpired() error {
	return NewDomainError(CodeExpired, "voting token has expired", http.StatusGone, nil)
}

func NewAlreadyUsed() error {
	return NewDomainError(CodeAlreadyUsed, "voting token has already been used", http.StatusConflict, nil)
}

func NewInvalidContent(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidContent, message, http.StatusBadRequest, details)
}

// NewRegistrationFailed wraps an upstream failure while registering a digest.
func NewRegistrationFailed(err error) error {
	return &DomainError{
		Code:       CodeRegistrationFailed,
		Message:    "ballot authority unavailable; try again",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		RetryAfter: 1,
		Err:        err,
	}
}

// NewReconciliationFailed wraps an upstream failure on an advisory S2S call.
func NewReconciliationFailed(err error) error {
	return &DomainError{
		Code:       CodeReconciliationFailed,
		Message:    "peer authority unavailable",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Err:        err,
	}
}

func NewRateLimited(retryAfterSeconds int) error {
	de := NewDomainError(CodeRateLimited, "too many attempts; slow down", http.StatusTooManyRequests,
		map[string]any{"retry_after_seconds": retryAfterSeconds})
	de.Retryable = true
	de.RetryAfter = retryAfterSeconds
	return de
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{Code: codeForStatus(fiberErr.Code), Message: fiberErr.Message, HTTPStatus: fiberErr.Code}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		if status >= 500 {
			return CodeInternal
		}
		return "ERROR"
	}
}
