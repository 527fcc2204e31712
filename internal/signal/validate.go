package signal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidAlert classifies every alert validation failure.
var ErrInvalidAlert = errors.New("invalid alert")

// ValidationError names the offending field of a rejected alert.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidAlert.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidAlert
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the required fields. It expects Normalize to have run.
func (a *TradeAlert) Validate() error {
	if err := validate.Struct(a); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
		}
		return &ValidationError{Field: "body", Reason: err.Error()}
	}
	if !a.Close.IsPositive() {
		return &ValidationError{Field: "close", Reason: "must be greater than 0"}
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed validation: " + fe.Tag()
	}
}
