package domain

import (
	"errors"
	"fmt"
)

// ErrHandshakeFail means the session closed before it was ever established.
var ErrHandshakeFail = errors.New("handshake failed")

// IOError is a fatal socket-level failure (anything but would-block).
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// SetupError means the transport session could not be constructed; the
// driver loop never started.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("session setup: %v", e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }
