package faults

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceWrapsOnce(t *testing.T) {
	root := errors.New("jtag timeout")

	wrapped := Device("memory read", root)
	assert.EqualError(t, wrapped, "memory read: jtag timeout")
	assert.ErrorIs(t, wrapped, root)
	assert.ErrorIs(t, wrapped, &DeviceOperationError{})

	again := Device("register read", wrapped)
	assert.Same(t, wrapped, again)
	assert.NoError(t, Device("noop", nil))
}

func TestConnectionErrorKeepsCause(t *testing.T) {
	err := &ConnectionError{HWServerURL: "TCP:board:3121", CSServerURL: "TCP:board:3042", Err: context.DeadlineExceeded}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, &ConnectionError{})
	assert.NotErrorIs(t, err, &DeviceOperationError{})
	assert.Contains(t, err.Error(), "TCP:board:3121")
}

func TestValidationErrorMessage(t *testing.T) {
	err := Invalid("window_count", "must be an integer, got %q", "many")

	assert.EqualError(t, err, `window_count: must be an integer, got "many"`)
	assert.ErrorIs(t, err, &ValidationError{})
	assert.EqualError(t, &ValidationError{Message: "No values entered for writing!"}, "No values entered for writing!")
}
