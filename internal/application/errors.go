package application

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/example/shiftline/internal/persistence"
)

var (
	// ErrUnauthenticated is returned when a bearer token is missing, invalid or resolves to no active user.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	ErrForbidden       = errors.New("application: forbidden")
	ErrNotFound        = errors.New("application: not found")
	// ErrConflict wraps store writes rejected by a uniqueness or reference constraint.
	ErrConflict           = errors.New("application: conflict")
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	ErrAccountDisabled    = errors.New("application: account disabled")
)

// ValidationError collects per-field messages shown to the caller as-is.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add keeps the first message recorded for a field.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// mapStoreError translates persistence sentinels into application ones,
// keeping the original error in the chain.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate), errors.Is(err, persistence.ErrConstraintViolation):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
