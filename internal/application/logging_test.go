package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/shiftline/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}
	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	serviceLogger(ctx, slog.New(slog.NewTextHandler(&base, nil)), "ChatService", "SendMessage", "chat_id", "c1").Info("hi")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay silent, got %q", base.String())
	}
	for _, want := range []string{"service=ChatService", "operation=SendMessage", "chat_id=c1"} {
		if !strings.Contains(scoped.String(), want) {
			t.Fatalf("expected %q in %q", want, scoped.String())
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"":                    nil,
		"unauthenticated":     ErrUnauthenticated,
		"forbidden":           fmt.Errorf("wrap: %w", ErrForbidden),
		"not_found":           ErrNotFound,
		"conflict":            fmt.Errorf("%w: dup", ErrConflict),
		"invalid_credentials": ErrInvalidCredentials,
		"account_disabled":    ErrAccountDisabled,
		"validation":          &ValidationError{},
		"canceled":            fmt.Errorf("store: %w", context.DeadlineExceeded),
		"unexpected":          errors.New("boom"),
	}
	for want, err := range tests {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
