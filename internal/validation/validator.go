// Package validation checks request DTOs and reports failures per field.
//
// It wraps go-playground/validator and names fields after their JSON keys,
// so a failure on AddRequest.ProjectCode reads "project_code: is required".
//
// # Usage Example
//
//	v := validation.New()
//	if err := v.Struct(req); err != nil {
//	    var verrs validation.Errors
//	    if errors.As(err, &verrs) {
//	        for _, e := range verrs {
//	            fmt.Printf("%s: %s\n", e.Field, e.Message)
//	        }
//	    }
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs tagged with `validate`.
type Validator struct {
	structValidator *validator.Validate
}

// ValidationError is a single failed field.
type ValidationError struct {
	// Field is the JSON name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value (omitted for empty values)
	Value any `json:"value,omitempty"`
}

// Errors is the list of failed fields of one struct. It implements error.
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return strings.Join(parts, "; ")
}

// New creates a Validator that reports JSON field names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return &Validator{structValidator: v}
}

// Struct validates s. Field failures are returned as Errors; any other
// problem, such as passing a non-struct, is returned as is.
func (v *Validator) Struct(s any) error {
	err := v.structValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Message: message(fe),
			Value:   nonZero(fe.Value()),
		})
	}
	return out
}

// fieldPath drops the struct name from the namespace, keeping nesting.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "ip", "hostname", "ip|hostname":
		return "must be an IP address or hostname"
	}
	return fmt.Sprintf("failed on the %q rule", fe.Tag())
}

func nonZero(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.IsZero() {
		return nil
	}
	return v
}
