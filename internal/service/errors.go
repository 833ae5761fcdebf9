package service

import (
	"errors"
	"fmt"

	"devicepulse/internal/validation"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError carries every rejected field of a report.
type ValidationError struct {
	Violations []validation.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d invalid field(s)", ErrInvalidRequest, len(e.Violations))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }
