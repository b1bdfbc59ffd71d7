// Package faults holds the error taxonomy shared by the session facade, the task
// runtime and the controller.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected is returned by device operations attempted without a session.
	ErrNotConnected = errors.New("no connection has been established with a device")
	// ErrTooManyProbes is returned when a sixth probe trigger is added.
	ErrTooManyProbes = errors.New("cannot trigger on more than 5 probes")
)

// ConnectionError reports that the debug servers could not be reached or refused the
// session. The session facade is left unchanged when it is returned.
type ConnectionError struct {
	HWServerURL string
	CSServerURL string
	Err         error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to hw_server %q / cs_server %q: %v", e.HWServerURL, e.CSServerURL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is enables errors.Is checks against any ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	_, ok := target.(*ConnectionError)
	return ok
}

// DeviceOperationError wraps a failing SDK call made on behalf of a task.
type DeviceOperationError struct {
	Op  string
	Err error
}

func (e *DeviceOperationError) Error() string {
	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "device operation"
	}
	if e.Err == nil {
		return op + " failed"
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *DeviceOperationError) Unwrap() error { return e.Err }

// Is enables errors.Is checks against any DeviceOperationError.
func (e *DeviceOperationError) Is(target error) bool {
	_, ok := target.(*DeviceOperationError)
	return ok
}

// ValidationError rejects user input before any task is started.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is enables errors.Is checks against any ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResourceTeardownError records a best-effort release that failed during reset.
// It is logged, never propagated to callers.
type ResourceTeardownError struct {
	Resource string
	Err      error
}

func (e *ResourceTeardownError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Resource, e.Err)
}

func (e *ResourceTeardownError) Unwrap() error { return e.Err }

// Is enables errors.Is checks against any ResourceTeardownError.
func (e *ResourceTeardownError) Is(target error) bool {
	_, ok := target.(*ResourceTeardownError)
	return ok
}

// Device wraps err as a DeviceOperationError unless it already is one or is nil.
func Device(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *DeviceOperationError
	if errors.As(err, &existing) {
		return err
	}
	return &DeviceOperationError{Op: op, Err: err}
}
