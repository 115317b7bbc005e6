package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for pipeline operations.
var (
	// ErrConfiguration indicates a call made in an invalid configuration, such
	// as planning before the field exists or an out-of-range parameter.
	ErrConfiguration = errors.New("dynamo: configuration error")

	// ErrNumericDegeneracy indicates a NaN/Inf or zero-magnitude normalization.
	ErrNumericDegeneracy = errors.New("dynamo: numeric degeneracy (NaN, Inf or zero magnitude)")

	// ErrUnreachableGoal indicates a search exhausted its step budget.
	ErrUnreachableGoal = errors.New("dynamo: goal unreachable within step budget")

	// ErrDimensionMismatch indicates an actuator vector changed length.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between calls")

	ErrFieldNotInitialized = fmt.Errorf("%w: potential field not initialized", ErrConfiguration)
	ErrUnknownParam        = fmt.Errorf("%w: unknown parameter", ErrConfiguration)
	ErrUnknownAgent        = errors.New("dynamo: unknown agent")
)

// ConfigurationError describes a rejected parameter value.
type ConfigurationError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dynamo: parameter %q=%g: %s", e.Param, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// RangeError builds a ConfigurationError for a value outside [lo, hi].
func RangeError(param string, value, lo, hi float64) *ConfigurationError {
	return &ConfigurationError{
		Param:  param,
		Value:  value,
		Reason: fmt.Sprintf("outside valid range [%g, %g]", lo, hi),
	}
}

// StageError wraps a failure inside one enhancement stage with tick context.
type StageError struct {
	Stage   string
	Agent   string
	Tick    int
	Wrapped error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("tick %d agent %s stage %s: %v", e.Tick, e.Agent, e.Stage, e.Wrapped)
}

func (e *StageError) Unwrap() error {
	return e.Wrapped
}
