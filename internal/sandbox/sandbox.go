// Package sandbox defines the application execution capability consumed by
// the worker engine, and ships the built-in sandbox implementations.
package sandbox

import "errors"

// ErrStreamClosed is returned by any Stream operation invoked after the
// stream has been terminated. It marks a contract violation on the caller's
// side, not a recoverable runtime condition.
var ErrStreamClosed = errors.New("the stream has been closed")

// Stream is one direction of a session: either the upstream sink handed to
// the sandbox for its output, or the downstream handle the sandbox returns
// for its input.
type Stream interface {
	Push(data []byte) error
	Error(code int, message string) error
	Close() error
}

// Sandbox begins one invocation per session. Invoke either returns the
// downstream handle that will receive the session's input, or fails
// synchronously; it must not block.
type Sandbox interface {
	Invoke(event string, upstream Stream) (Stream, error)
}
