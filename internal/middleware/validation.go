package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "aquaexport/internal/errors"
)

// maxBodySize bounds JSON request bodies
const maxBodySize = 1 << 20

// Validator checks request structs against their validate tags
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator reporting fields by their json or query name
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return &Validator{validate: v}
}

// Struct validates v and returns an APIError listing every failed field
func (m *Validator) Struct(v interface{}) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.InvalidRequestWithError(err)
	}
	out := make([]apperrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apperrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apperrors.NewValidationErrors(out)
}

// DecodeJSON reads a JSON body into v and validates it
func (m *Validator) DecodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.InvalidRequestWithError(err)
	}
	return m.Struct(v)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must match the layout %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
