package core

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceLost            = errors.New("device lost")
	ErrRayTracingUnsupported = errors.New("ray tracing is not supported by the device")
	ErrUnknown               = errors.New("unknown")
)

// ValidationError is returned when a recorded command breaks a rule the
// front-end could not check on its own (ordering of acceleration builds,
// missing references). The command buffer is abandoned, the device is not.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Rule, e.Message)
}

func NewValidationError(rule, format string, args ...interface{}) error {
	err := &ValidationError{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
	LogError("%s", err.Error())
	return err
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// DeviceError reports a native call that failed. It always unwraps to
// ErrDeviceLost so callers can tear the device down with a single check.
type DeviceError struct {
	Call string
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Call, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	return []error{ErrDeviceLost, e.Err}
}

func NewDeviceError(call string, err error) error {
	if err == nil {
		err = ErrUnknown
	}
	derr := &DeviceError{Call: call, Err: err}
	LogError("%s", derr.Error())
	return derr
}

// Unreachable aborts on a state upstream validation should have prevented.
func Unreachable(format string, args ...interface{}) {
	panic(fmt.Sprintf("unreachable: "+format, args...))
}

func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
