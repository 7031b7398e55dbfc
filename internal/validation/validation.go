// Package validation holds the request-validation helpers shared by the
// domain services: a validator configured to report JSON field names and
// the Error type the HTTP layer turns into 400 responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error reports the first invalid field of a request.
type Error struct {
	Field   string
	Message string
}

func (e Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// New returns a validator that names fields by their json tag.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FromValidator maps the first validator failure onto an Error. Other
// errors are returned unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "max":
		if fe.Kind() == reflect.String {
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		} else {
			msg = fmt.Sprintf("must be at most %s", fe.Param())
		}
	case "min":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "url", "http_url":
		msg = "must be a valid URL"
	case "email":
		msg = "must be a valid email address"
	case "oneof":
		msg = fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		msg = "is invalid"
	}
	return Error{Field: fe.Field(), Message: msg}
}
