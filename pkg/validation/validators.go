package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the custom tags registered and json field names in errors
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	RegisterValidators(v)
	return v
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("no_control", NoControlChars)
}

// NoControlChars rejects strings carrying control characters such as NUL or escape codes
func NoControlChars(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
