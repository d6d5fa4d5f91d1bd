package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Error is one failed rule on one request field.
type Error struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// FormatValidationError flattens validator errors for an API response.
// Other errors (malformed JSON, wrong types) yield nil.
func FormatValidationError(err error) []Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]Error, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, Error{
			Field:   e.Field(),
			Rule:    e.Tag(),
			Message: message(e),
		})
	}
	return out
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "roomid":
		return fmt.Sprintf("%s must be 1-64 letters, digits, '-' or '_'", e.Field())
	case "participantid":
		return fmt.Sprintf("%s must be 1-64 letters, digits or one of -_.:@", e.Field())
	case "trackkind":
		return fmt.Sprintf("%s must be audio or video", e.Field())
	case "unique":
		return fmt.Sprintf("%s must not repeat values", e.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s long", e.Field(), e.Param())
	default:
		return e.Error()
	}
}
