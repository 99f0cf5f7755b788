// Package validation wraps go-playground/validator with the domain rules of
// the service and turns the first failing field into a user-facing message.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Messages shown for the standard input rules.
const (
	MsgFirstName = "Enter a valid first name (at least 2 characters)"
	MsgLastName  = "Enter a valid last name (at least 2 characters)"
	MsgFinCode   = "FIN code must be 7 characters (letters and digits)"
	MsgPassword  = "Password must be at least 6 characters"
)

var finPattern = regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("fincode", func(fl validator.FieldLevel) bool {
		return ValidFinCode(fl.Field().String())
	})
	_ = validate.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// Report JSON names so messages and Field match the request body.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// Error describes the first rule an input failed.
type Error struct {
	Field   string
	Rule    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// New builds an Error for checks made outside struct tags.
func New(field, message string) *Error {
	return &Error{Field: field, Rule: "custom", Message: message}
}

// ValidFinCode reports whether s is 7 letters or digits, in any case.
func ValidFinCode(s string) bool {
	return finPattern.MatchString(s)
}

// NormalizeFinCode returns the canonical uppercase form of a FIN code.
func NormalizeFinCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidName requires at least two characters after trimming.
func ValidName(s string) bool {
	return len([]rune(strings.TrimSpace(s))) >= 2
}

// MinPasswordLength is counted in characters, not bytes.
const MinPasswordLength = 6

// ValidPassword requires at least MinPasswordLength characters.
func ValidPassword(s string) bool {
	return utf8.RuneCountInString(s) >= MinPasswordLength
}

// Struct validates v against its `validate` tags. Fields are checked in
// declaration order and only the first failure is reported, using the message
// registered for that field or a generic one.
func Struct(v any, messages map[string]string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}
	fe := fieldErrs[0]
	msg, ok := messages[fe.Field()]
	if !ok {
		msg = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	return &Error{Field: fe.Field(), Rule: fe.Tag(), Message: msg}
}

// Var validates a single value against tag.
func Var(field string, value any, tag, message string) error {
	if err := validate.Var(value, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &Error{Field: field, Rule: fieldErrs[0].Tag(), Message: message}
		}
		return fmt.Errorf("validate %s: %w", field, err)
	}
	return nil
}
