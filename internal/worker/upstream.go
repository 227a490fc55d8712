package worker

import (
	"sync"

	"github.com/lumeworks/anvil/internal/protocol"
	"github.com/lumeworks/anvil/internal/sandbox"
)

// upstream is the outbound half of a session's stream pair: it turns the
// sandbox's output into session-tagged protocol messages. The state machine
// is one-way, open to closed; every operation on a closed upstream returns
// sandbox.ErrStreamClosed.
//
// The mutex is there because the sandbox may drive its output from its own
// goroutines; the engine itself only touches an upstream from the dispatch
// goroutine.
type upstream struct {
	id string
	ch Channel

	mu     sync.Mutex
	closed bool
}

func newUpstream(id string, ch Channel) *upstream {
	return &upstream{id: id, ch: ch}
}

func (u *upstream) Push(data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return sandbox.ErrStreamClosed
	}
	return u.ch.Send(protocol.NewChunk(u.id, data))
}

func (u *upstream) Error(code int, message string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return sandbox.ErrStreamClosed
	}
	u.closed = true

	if err := u.ch.Send(protocol.NewError(u.id, code, message)); err != nil {
		return err
	}
	return u.ch.Send(protocol.NewChoke(u.id))
}

func (u *upstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return sandbox.ErrStreamClosed
	}
	u.closed = true

	return u.ch.Send(protocol.NewChoke(u.id))
}

// release closes the upstream if it is still open. Used by the engine's
// shutdown path as a resource safety net; unlike Close it is idempotent.
func (u *upstream) release() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	return u.ch.Send(protocol.NewChoke(u.id))
}
