package reconciler

import (
	"errors"
	"fmt"
)

// ErrUnreachable means the workload cannot be reached. The cycle waits for the next event.
var ErrUnreachable = errors.New("workload is not reachable")

// WriteError reports an artifact that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// LayerError reports a supervision layer that could not be installed.
type LayerError struct {
	Err error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("failed to install supervision layer: %v", e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// RestartError reports a failed restart after new artifacts were applied.
// The artifacts stay in place and the next successful cycle restarts again.
type RestartError struct {
	Service string
	Err     error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("failed to restart %s: %v", e.Service, e.Err)
}

func (e *RestartError) Unwrap() error { return e.Err }
