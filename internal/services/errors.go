package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	ErrSessionNotFound      = errors.New("proctoring session not found")
	ErrSessionAlreadyEnded  = errors.New("proctoring session already ended")
	ErrSessionNotActive     = errors.New("proctoring session is not active")
	ErrStudentHasActive     = errors.New("student already has an active session")
	ErrViolationNotFound    = errors.New("violation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidTerminate     = errors.New("termination requires an actor and a reason")
	ErrServiceNotAvailable  = errors.New("service not available")
	ErrReportNotReady       = errors.New("report cannot be generated for an active session")
)

// ValidationErrors re-exports the validator error type for handler mapping.
type ValidationErrors = validator.ValidationErrors

// ===== TYPED ERRORS =====

// PermissionError is returned when a user acts on a resource they do not own
// or lack the role for.
type PermissionError struct {
	UserID   string
	Resource string
	ID       string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ID, e.Reason)
}

func NewPermissionError(userID, resource, id, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		ID:       id,
		Action:   action,
		Reason:   reason,
	}
}

// BusinessRuleError is returned when an operation violates a domain rule
// that is not a plain validation failure.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}
