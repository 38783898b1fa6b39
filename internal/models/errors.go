package models

import (
	"errors"
	"fmt"
)

// ValidationError is a user-facing input problem; the API maps it to 400.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

// NewValidationError creates a new validation error.
func NewValidationError(format string, args ...interface{}) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var vErr ValidationError
	return errors.As(err, &vErr)
}

// ErrInvalidTransition is returned when an event is not in the status an
// operation requires; the API maps it to 409.
var ErrInvalidTransition = errors.New("event status does not allow this operation")
