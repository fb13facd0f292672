package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps json field names to readable labels
var FieldLabels = map[string]string{
	"type":                     "Event type",
	"data":                     "Event data",
	"id":                       "Object id",
	"user_id":                  "User id",
	"first_name":               "First name",
	"last_name":                "Last name",
	"image_url":                "Image URL",
	"primary_email_address_id": "Primary email id",
}

// FormatValidationErrors converts validator.ValidationErrors to readable messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.Field())
	param := e.Param()

	switch e.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s: is required", label)
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s: must be at most %s characters", label, param)
		}
		return fmt.Sprintf("%s: must be at most %s", label, param)
	case "url":
		return fmt.Sprintf("%s: invalid URL", label)
	case "no_control":
		return fmt.Sprintf("%s: must not contain control characters", label)
	default:
		return fmt.Sprintf("%s: failed validation (%s)", label, e.Tag())
	}
}

func getFieldLabel(field string) string {
	if label, ok := FieldLabels[field]; ok {
		return label
	}
	return field
}

// Summary joins all messages into one line
func Summary(err error) string {
	return strings.Join(FormatValidationErrors(err), "; ")
}
