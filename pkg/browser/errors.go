package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable = errors.New("browser driver unavailable")
	ErrClosed      = errors.New("browser resource closed")
	ErrTimeout     = errors.New("browser operation timeout")
	ErrNotFound    = errors.New("element not found")
	ErrNotVisible  = errors.New("element not visible")
)

// DriverError wraps errors from a driver with the failing operation.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Wrap returns a DriverError for op, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}

// IsTimeout reports whether err is a driver timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
