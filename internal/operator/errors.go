package operator

import (
	"fmt"
	"time"
)

// PermanentError marks a failure that retrying will not fix. The dispatcher
// moves the resource to phase Failed and does not requeue it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %s", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err into a PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError marks a failure that is expected to go away. The
// dispatcher moves the resource to phase Error and retries after Delay.
type TemporaryError struct {
	Err   error
	Delay time.Duration
}

func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary error, retrying in %s: %s", e.Delay, e.Err)
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

// Temporary wraps err into a TemporaryError
func Temporary(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err, Delay: delay}
}
