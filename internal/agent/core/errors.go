package core

import (
	"errors"
	"fmt"
)

// ErrEmptyOutput is wrapped when a stage returns no text.
var ErrEmptyOutput = errors.New("empty generation output")

// GenerationError reports a failed stage. Deadline expiry is wrapped as
// context.DeadlineExceeded.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is or wraps a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
