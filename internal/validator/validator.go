package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// Validator wraps go-playground/validator with the proctoring domain rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerDomainRules()

	return v
}

// Validate runs struct validation and converts failures to ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if verrs := ToValidationErrors(err); len(verrs) > 0 {
			return verrs
		}
		return err
	}
	return nil
}

func (v *Validator) registerDomainRules() {
	// violation_type: known monitoring signal types; the set is open on the
	// wire but the API only accepts tags it understands
	v.validate.RegisterValidation("violation_type", func(fl validator.FieldLevel) bool {
		switch models.ViolationType(fl.Field().String()) {
		case models.ViolationFaceNotVisible, models.ViolationMultipleFaces,
			models.ViolationTabSwitch, models.ViolationWindowBlur,
			models.ViolationSuspiciousMovement, models.ViolationAudioAnomaly,
			models.ViolationScreenShare:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return models.ViolationSeverity(fl.Field().String()).Valid()
	})

	v.validate.RegisterValidation("session_status", func(fl validator.FieldLevel) bool {
		switch models.SessionStatus(fl.Field().String()) {
		case models.SessionActive, models.SessionCompleted, models.SessionTerminated:
			return true
		}
		return false
	})

	// terminate_reason: non-blank, bounded free text for the audit trail
	v.validate.RegisterValidation("terminate_reason", func(fl validator.FieldLevel) bool {
		reason := strings.TrimSpace(fl.Field().String())
		return reason != "" && len(reason) <= 500
	})
}

// ValidationError describes a single field failure.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates field failures for one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ToValidationErrors converts validator.ValidationErrors to our error type.
func ToValidationErrors(err error) ValidationErrors {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageForTag(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "violation_type":
		return "is not a known violation type"
	case "severity":
		return "must be one of low, medium, high, critical"
	case "session_status":
		return "is not a valid session status"
	case "terminate_reason":
		return "must be a non-empty reason of at most 500 characters"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
