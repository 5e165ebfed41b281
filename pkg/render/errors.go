package render

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScene is matched by errors reporting a missing array or an
	// out-of-range index.
	ErrInvalidScene = errors.New("invalid scene")

	// ErrSizeMismatch is matched by errors reporting a buffer whose length
	// disagrees with the scene sizes.
	ErrSizeMismatch = errors.New("size mismatch")
)

// InvalidSceneError names the scene field that failed validation.
type InvalidSceneError struct {
	Field  string
	Reason string
}

func (e *InvalidSceneError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid scene: %s", e.Field)
	}
	return fmt.Sprintf("invalid scene: %s: %s", e.Field, e.Reason)
}

func (e *InvalidSceneError) Unwrap() error { return ErrInvalidScene }

// SizeMismatchError reports a buffer of the wrong length.
type SizeMismatchError struct {
	Field string
	Got   int
	Want  int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: %s has length %d, want %d", e.Field, e.Got, e.Want)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }
