package validator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Message returns the client facing message of a validation error.
func Message(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}

	fe := fieldErrs[0]
	if fe.Tag() == "required" {
		return fmt.Sprintf("%s required", fe.Field())
	}
	return fmt.Sprintf("%s invalid", fe.Field())
}
