package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/shiftline/internal/persistence"
)

// ErrDatabaseLocked covers SQLITE_BUSY and SQLITE_LOCKED. Only these are retried.
var ErrDatabaseLocked = errors.New("sqlite: database locked")

// driverFailures maps substrings of modernc driver messages to sentinels.
// The driver exposes no stable error codes through database/sql.
var driverFailures = []struct {
	sentinel error
	markers  []string
}{
	{persistence.ErrDuplicate, []string{"UNIQUE constraint failed", "PRIMARY KEY constraint failed"}},
	{persistence.ErrConstraintViolation, []string{"FOREIGN KEY constraint failed", "CHECK constraint failed", "NOT NULL constraint failed"}},
	{ErrDatabaseLocked, []string{"database is locked", "database table is locked", "SQLITE_BUSY"}},
}

type ErrorMapper struct{}

func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError wraps the driver error with the matching persistence sentinel.
// Unknown errors pass through unchanged.
func (em *ErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	msg := err.Error()
	for _, f := range driverFailures {
		for _, marker := range f.markers {
			if strings.Contains(msg, marker) {
				return fmt.Errorf("%w: %v", f.sentinel, err)
			}
		}
	}
	return err
}

type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig suits short write transactions contending on the WAL
// writer lock; busy_timeout already absorbs most contention.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) backoff(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * c.BackoffFactor)
	return min(next, c.MaxDelay)
}

type RetryHelper struct {
	config RetryConfig
	mapper *ErrorMapper
}

func NewRetryHelper(config RetryConfig) *RetryHelper {
	return &RetryHelper{config: config, mapper: NewErrorMapper()}
}

// WithRetry runs fn until it succeeds, fails with something other than
// ErrDatabaseLocked, runs out of retries, or ctx ends. Errors come back mapped.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn func() error) error {
	err := rh.mapper.MapError(fn())
	delay := rh.config.InitialDelay

	for retries := 0; errors.Is(err, ErrDatabaseLocked); retries++ {
		if retries == rh.config.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", retries, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = rh.config.backoff(delay)
		err = rh.mapper.MapError(fn())
	}
	return err
}
