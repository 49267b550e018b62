package common

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
)

// ValidationError is one failed rule on one input field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator collects rule failures across the fields of one request.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs rules against value, recording every failure.
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

func (v *Validator) message() string {
	parts := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

type ValidationRule func(fieldName string, value interface{}) *ValidationError

func Required(fieldName string, value interface{}) *ValidationError {
	if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
		return nil
	}
	return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
}

// UUID accepts empty values; pair it with Required when the id is mandatory.
func UUID(fieldName string, value interface{}) *ValidationError {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a UUID"}
	}
	return nil
}

// NoPathSeparators rejects names that could escape a storage prefix.
func NoPathSeparators(fieldName string, value interface{}) *ValidationError {
	s, _ := value.(string)
	if strings.ContainsAny(s, "/\\\x00") || s == ".." || s == "." {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a bare file name"}
	}
	return nil
}

func MaxLen(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		s, _ := value.(string)
		if utf8.RuneCountInString(s) > max {
			return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("must be at most %d characters", max)}
		}
		return nil
	}
}

// ValidateAndReturnError returns an INVALID_INPUT AppError listing every failure, or nil.
func ValidateAndReturnError(validator *Validator) error {
	if validator.HasErrors() {
		return NewAppError(constants.ErrCodeInvalidInput, validator.message(), ErrInvalidInput)
	}
	return nil
}

// ParseID validates and parses a required UUID input.
func ParseID(fieldName, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	v := NewValidator().Field(fieldName, raw, Required, UUID)
	if err := ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}
