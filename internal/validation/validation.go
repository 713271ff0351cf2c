// Package validation checks request payloads before they leave the client.
//
// Messages use the same "field: message, field: message" layout the 10xCards
// backend returns for 400 responses, so callers can feed local and remote
// validation failures through ParseFieldErrors alike.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	passwordAllowed = regexp.MustCompile(`^[A-Za-z\d@$!%*?&#]+$`)
	passwordLower   = regexp.MustCompile(`[a-z]`)
	passwordUpper   = regexp.MustCompile(`[A-Z]`)
	passwordDigit   = regexp.MustCompile(`\d`)
	passwordSpecial = regexp.MustCompile(`[@$!%*?&#]`)
)

const minPasswordLength = 8

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return PasswordProblem(fl.Field().String()) == ""
	})
	_ = validate.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
	})
	_ = validate.RegisterValidation("trimmed_max", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) <= n
	})
}

// Error lists failed fields in the order the validator reported them.
type Error struct {
	Fields map[string]string
	order  []string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, field := range e.order {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return strings.Join(parts, ", ")
}

// Add records msg for field unless the field already failed.
func (e *Error) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
	e.order = append(e.order, field)
}

// Struct validates v against its validate tags.
func Struct(v any) error {
	if v == nil {
		return errors.New("validation: nil request")
	}
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe), message(fe))
	}
	return out
}

// PasswordProblem returns an empty string for an acceptable password and a
// short description of the first broken rule otherwise.
func PasswordProblem(password string) string {
	switch {
	case password == "":
		return "password is required"
	case len(password) < minPasswordLength:
		return fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	case !passwordAllowed.MatchString(password):
		return "password may only contain letters, digits and @$!%*?&#"
	case !passwordLower.MatchString(password):
		return "password must contain a lowercase letter"
	case !passwordUpper.MatchString(password):
		return "password must contain an uppercase letter"
	case !passwordDigit.MatchString(password):
		return "password must contain a digit"
	case !passwordSpecial.MatchString(password):
		return "password must contain one of @$!%*?&#"
	}
	return ""
}

// ParseFieldErrors splits a "field: message, field: message" string. It
// returns nil when no part carries a field name.
func ParseFieldErrors(message string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(message, ", ") {
		idx := strings.Index(part, ": ")
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(part[:idx])
		if field == "" || strings.ContainsAny(field, " \t") {
			continue
		}
		out[field] = strings.TrimSpace(part[idx+2:])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	// Namespace is "Type.field.sub"; drop the root type name.
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "password":
		return PasswordProblem(fe.Value().(string))
	case "min", "trimmed_min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "trimmed_max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", "/")
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
