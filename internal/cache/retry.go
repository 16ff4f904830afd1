package cache

import (
	"errors"
	"log/slog"
	"time"
)

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn up to maxTry times, sleeping delay between attempts.
// A Permanent error or success stops the loop; the last error is returned.
func Retry(logger *slog.Logger, maxTry int, delay time.Duration, fn func() error) error {
	if maxTry < 1 {
		maxTry = 1
	}

	var err error
	for attempt := 1; attempt <= maxTry; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt < maxTry {
			logger.Debug("retrying after failure",
				"attempt", attempt, "max_try", maxTry, "error", err)
			time.Sleep(delay)
		}
	}
	return err
}
