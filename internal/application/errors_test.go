package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/shiftline/internal/persistence"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("expected nil validation error to be empty")
	}

	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	if vErr.Error() != "validation failed" {
		t.Fatalf("unexpected message %q", vErr.Error())
	}

	vErr.add("type", "bad type")
	vErr.add("content", "required")
	vErr.add("content", "too long")
	if !vErr.HasErrors() || vErr.FieldErrors["content"] != "required" {
		t.Fatalf("expected first message to be kept, got %v", vErr.FieldErrors)
	}
	if vErr.Error() != "validation failed: content, type" {
		t.Fatalf("unexpected message %q", vErr.Error())
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	if mapStoreError(nil) != nil {
		t.Fatal("expected nil")
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: fmt.Errorf("wrapped: %w", persistence.ErrNotFound), want: ErrNotFound},
		{name: "duplicate", err: persistence.ErrDuplicate, want: ErrConflict},
		{name: "constraint", err: persistence.ErrConstraintViolation, want: ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapStoreError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("expected original error to stay in the chain, got %v", got)
			}
		})
	}

	other := errors.New("boom")
	if mapStoreError(other) != other {
		t.Fatal("expected other errors to pass through")
	}
	if mapStoreError(ErrNotFound) != ErrNotFound {
		t.Fatal("expected application errors to pass through unchanged")
	}
}
