package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	errors "github.com/ojhankit/team-collaboration-sys-backend/internal"
)

const (
	MinPasswordLength = 6
	// bcrypt refuses anything longer
	MaxPasswordBytes = 72
	passwordSpecials = "@$!%*?&"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
	errors []errors.ValidationError
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
		errors: make([]errors.ValidationError, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) OneOf(code errors.ErrorCode, allowed ...string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		message := fmt.Sprintf("%s must be one of %s", fv.FieldName, strings.Join(allowed, ", "))
		return errors.NewValidationFieldError(fv.FieldName, message, code)
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			if err := validator(field.Value); err != nil {
				validationErrors = append(validationErrors, detailsOf(field.FieldName, err)...)
			}
		}
	}

	return collect(validationErrors)
}

func detailsOf(field string, appErr *errors.AppError) []errors.ValidationError {
	if details, ok := appErr.Details.(errors.ValidationErrors); ok {
		return details.Errors
	}
	return []errors.ValidationError{{
		Field:   field,
		Message: appErr.Message,
		Code:    string(appErr.Code),
	}}
}

func collect(validationErrors []errors.ValidationError) *errors.AppError {
	if len(validationErrors) == 0 {
		return nil
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: validationErrors})
}

// ----------------- STRUCT TAGS -----------------

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return checkPassword(fl.Field().String()) == ""
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Struct validates a DTO by its `validate` tags. Field names in the details
// follow the json tags.
func Struct(dto interface{}) *errors.AppError {
	err := structValidator.Struct(dto)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	out := make([]errors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, errors.ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Code:    string(codeFor(fe)),
		})
	}
	return collect(out)
}

func messageFor(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must use the %s format", field, fe.Param())
	case "strongpassword":
		return checkPassword(fmt.Sprint(fe.Value()))
	}
	return fmt.Sprintf("%s is invalid", field)
}

func codeFor(fe validator.FieldError) errors.ErrorCode {
	switch fe.Tag() {
	case "strongpassword", "nefield":
		return errors.ErrCodeInvalidPassword
	case "datetime":
		return errors.ErrCodeInvalidDate
	case "oneof":
		return errors.ErrCodeInvalidStatus
	}
	return errors.ErrCodeValidationFailed
}

// ----------------- DOMAIN RULES -----------------

// checkPassword returns the first unmet strength rule, or "" when the password passes.
func checkPassword(password string) string {
	if len(password) < MinPasswordLength {
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Sprintf("password must not exceed %d bytes", MaxPasswordBytes)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	switch {
	case !upper:
		return "password must contain an uppercase letter"
	case !lower:
		return "password must contain a lowercase letter"
	case !digit:
		return "password must contain a digit"
	case !special:
		return fmt.Sprintf("password must contain one of %s", passwordSpecials)
	}
	return ""
}
