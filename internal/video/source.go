package video

import (
	"errors"
	"fmt"
)

// Source delivers frames from a camera or stream. Frames() yields the most
// recent frame available; stale frames are dropped rather than queued so a
// slow consumer always sees fresh video.
type Source interface {
	// Frames returns the receive channel for decoded frames. The channel is
	// closed when the source stops, either via Close or on a fatal error.
	Frames() <-chan *Frame

	// Err returns the error that terminated the source, nil after a clean
	// Close. Valid only after Frames() is closed.
	Err() error

	// Close stops capture and releases the underlying connection. Safe to
	// call more than once.
	Close() error
}

// ConnectionError reports a failure to reach or keep reading the camera.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("camera connection %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err wraps a camera connection failure.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
