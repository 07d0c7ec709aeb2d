// Package simulation is the boundary to the external numerical model. The
// model is opaque: it receives a Fingerprint and returns a results.Result,
// or fails with a ComputationError.
package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvandessel/simdash/internal/results"
)

// Simulator runs the model for one input configuration. Implementations may
// block for a long time; they should honor ctx cancellation where possible.
type Simulator interface {
	Simulate(ctx context.Context, fp Fingerprint) (*results.Result, error)
}

// Func adapts an ordinary function to the Simulator interface.
type Func func(ctx context.Context, fp Fingerprint) (*results.Result, error)

// Simulate calls f(ctx, fp).
func (f Func) Simulate(ctx context.Context, fp Fingerprint) (*results.Result, error) {
	return f(ctx, fp)
}

// ComputationError reports that the model failed for a given input.
type ComputationError struct {
	// Key is the fingerprint key of the failed input.
	Key string

	// Stderr holds the tail of the model's diagnostic output, if any.
	Stderr string

	Err error
}

func (e *ComputationError) Error() string {
	short := e.Key
	if len(short) > 12 {
		short = short[:12]
	}
	msg := fmt.Sprintf("simulation %s failed: %v", short, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// AsComputationError wraps err in a ComputationError for key unless it
// already is one.
func AsComputationError(key string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ComputationError
	if errors.As(err, &ce) {
		return err
	}
	return &ComputationError{Key: key, Err: err}
}

// IsComputationError reports whether err is, or wraps, a ComputationError.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
