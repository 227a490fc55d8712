package sandbox

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordStream captures what a sandbox writes upstream.
type recordStream struct {
	mu     sync.Mutex
	pushed [][]byte
	closed bool
	code   int
	msg    string
}

func (s *recordStream) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.pushed = append(s.pushed, data)
	return nil
}

func (s *recordStream) Error(code int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	s.code, s.msg = code, message
	return nil
}

func (s *recordStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	return nil
}

func TestRegistryKnowsBuiltins(t *testing.T) {
	assert.Contains(t, Types(), "native")
	assert.Contains(t, Types(), "echo")
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New("fortran", "app", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sandbox type")
}

func TestNativeDispatchesRegisteredHandler(t *testing.T) {
	n := NewNative("app")

	var got Stream
	n.Handle("ping", func(upstream Stream) (Stream, error) {
		got = upstream
		return &recordStream{}, nil
	})

	up := &recordStream{}
	down, err := n.Invoke("ping", up)
	require.NoError(t, err)
	require.NotNil(t, down)
	assert.Same(t, up, got, "handler must receive the session's upstream")
}

func TestNativeUnknownEventFaultsSynchronously(t *testing.T) {
	n := NewNative("app")

	_, err := n.Invoke("missing", &recordStream{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event")
}

func TestNativeHandlerFaultPropagates(t *testing.T) {
	n := NewNative("app")
	boom := errors.New("handler refused")
	n.Handle("ping", func(upstream Stream) (Stream, error) {
		return nil, boom
	})

	_, err := n.Invoke("ping", &recordStream{})
	assert.Same(t, boom, err)
}

func TestEchoReflectsInput(t *testing.T) {
	e := NewEcho("app")
	up := &recordStream{}

	down, err := e.Invoke("anything", up)
	require.NoError(t, err)

	require.NoError(t, down.Push([]byte("hello")))
	require.NoError(t, down.Close())

	assert.Equal(t, [][]byte{[]byte("hello")}, up.pushed)
	assert.True(t, up.closed)

	// The echo stream inherits the upstream's terminal state.
	require.ErrorIs(t, down.Push([]byte("late")), ErrStreamClosed)
}
