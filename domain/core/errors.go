package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrSnapshotNotFound = fmt.Errorf("%w: model snapshot", ErrNotFound)
	ErrMatrixNotFound   = fmt.Errorf("%w: correlation matrix", ErrNotFound)
	ErrSeriesNotFound   = fmt.Errorf("%w: time series", ErrNotFound)

	// Input errors
	ErrInsufficientData   = errors.New("insufficient data for analysis")
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrInvalidProbability = errors.New("invalid probability")

	// Numerical errors
	ErrSingularMatrix = errors.New("singular matrix")
	ErrNonFinite      = errors.New("non-finite value")

	// Model state errors
	ErrModelNotReady      = errors.New("model not ready")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrNoTrainingData     = errors.New("no usable training examples")

	// Conflict errors
	ErrSnapshotExists = errors.New("model version already published with a different model id")
)

// NewNotFoundError builds a not-found error for a resource and id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewShapeError reports a dimension mismatch
func NewShapeError(what string, want, got int) error {
	return fmt.Errorf("%w: %s expected %d, got %d", ErrShapeMismatch, what, want, got)
}

// NewIndexError reports an out-of-range index
func NewIndexError(what string, index, length int) error {
	return fmt.Errorf("%w: %s index %d not in [0,%d)", ErrIndexOutOfRange, what, index, length)
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInputError reports whether err was caused by malformed caller input
func IsInputError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidProbability)
}

// IsNumericalError reports whether err is a recoverable numerical failure
func IsNumericalError(err error) bool {
	return errors.Is(err, ErrSingularMatrix) || errors.Is(err, ErrNonFinite)
}
