package validator

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// the trainer service accepts any name up to this length
const maxProjectNameLength = 255

func nameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	if strings.TrimSpace(val) == "" {
		return false
	}
	return utf8.RuneCountInString(val) <= maxProjectNameLength
}

// remote project ids are guids
func remoteProjectIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	id, err := uuid.Parse(val)
	return err == nil && id != uuid.Nil
}
