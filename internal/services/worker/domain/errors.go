package domain

import (
	"errors"
	"fmt"
)

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent job failure"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks a job failure that rerunning cannot fix, such as missing
// configuration. The loop disables a job that returns one.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// Permanentf formats a permanent failure.
func Permanentf(format string, args ...any) error {
	return permanentError{cause: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err was marked permanent anywhere in its chain.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}
