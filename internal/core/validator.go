package core

import (
	"github.com/go-playground/validator/v10"

	"scribepay/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation.
// A single instance is shared across handlers; the underlying validate
// instance caches struct metadata and is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates the struct's `validate` tags and translates
// failures into a 400 AppError with per-field details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	valErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not be performed", err)
	}

	details := make(map[string]any, len(valErrs))
	for _, fe := range valErrs {
		details[fe.Field()] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request failed validation",
		err,
		details,
	)
}
