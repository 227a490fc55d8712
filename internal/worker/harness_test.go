package worker

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lumeworks/anvil/internal/protocol"
	"github.com/lumeworks/anvil/internal/sandbox"
)

func testLogEntry() *logrus.Entry {
	return logrus.WithField("worker", "test-worker")
}

// fakeChannel mirrors the dealer's inbox mechanics in memory: queued
// multiparts, a frame cursor, and a capacity-one readiness token. Outbound
// messages are recorded instead of hitting a socket.
type fakeChannel struct {
	mu    sync.Mutex
	inbox [][][]byte
	cur   [][]byte
	pos   int

	sent    []protocol.Message
	sendErr error
	accept  bool // TrySend acceptance

	ready  chan struct{}
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		accept: true,
		ready:  make(chan struct{}, 1),
	}
}

// push enqueues a message in its wire form, like the pump goroutine does.
func (c *fakeChannel) push(t *testing.T, m protocol.Message) {
	t.Helper()
	frames, err := m.Frames()
	require.NoError(t, err)

	c.mu.Lock()
	c.inbox = append(c.inbox, frames)
	c.mu.Unlock()
	c.Rearm()
}

func (c *fakeChannel) Ready() <-chan struct{} { return c.ready }

func (c *fakeChannel) Rearm() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *fakeChannel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbox) > 0
}

func (c *fakeChannel) RecvType() (protocol.Type, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.inbox) == 0 {
		return 0, false
	}
	c.cur, c.inbox = c.inbox[0], c.inbox[1:]
	c.pos = 1

	tag, err := protocol.DecodeType(c.cur[0])
	if err != nil {
		return protocol.Type(-1), true
	}
	return tag, true
}

func (c *fakeChannel) RecvPayload(dst ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range dst {
		if c.cur == nil || c.pos >= len(c.cur) {
			return errMissingFrame
		}
		if err := protocol.DecodeFrame(c.cur[c.pos], p); err != nil {
			return err
		}
		c.pos++
	}
	if c.pos >= len(c.cur) {
		c.cur, c.pos = nil, 0
	}
	return nil
}

func (c *fakeChannel) More() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && c.pos < len(c.cur)
}

func (c *fakeChannel) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur, c.pos = nil, 0
}

func (c *fakeChannel) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeChannel) TrySend(m protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accept {
		return false
	}
	c.sent = append(c.sent, m)
	return true
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) sentTypes() []protocol.Type {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]protocol.Type, 0, len(c.sent))
	for _, m := range c.sent {
		types = append(types, m.Type)
	}
	return types
}

// sentOf returns the recorded messages of one type.
func (c *fakeChannel) sentOf(t protocol.Type) []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []protocol.Message
	for _, m := range c.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

var errMissingFrame = errors.New("message has no more frames")

// fakeStream records what the engine forwards into the sandbox.
type fakeStream struct {
	mu       sync.Mutex
	pushed   [][]byte
	closed   bool
	pushErr  error
	closeErr error
}

func (s *fakeStream) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed = append(s.pushed, data)
	return nil
}

func (s *fakeStream) Error(code int, message string) error { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	s.closed = true
	return nil
}

// fakeSandbox hands out fakeStreams and fails the configured events.
type fakeSandbox struct {
	mu       sync.Mutex
	invoked  []string
	failWith map[string]error
	streams  []*fakeStream
	next     *fakeStream // used for the next Invoke when set
}

func (s *fakeSandbox) Invoke(event string, upstream sandbox.Stream) (sandbox.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoked = append(s.invoked, event)
	if err, ok := s.failWith[event]; ok {
		return nil, err
	}

	stream := s.next
	s.next = nil
	if stream == nil {
		stream = &fakeStream{}
	}
	s.streams = append(s.streams, stream)
	return stream, nil
}

func newTestWorker(st settings) (*Worker, *fakeChannel, *fakeSandbox) {
	ch := newFakeChannel()
	sb := &fakeSandbox{failWith: make(map[string]error)}
	w := newWorker("test-worker", ch, sb, st)
	return w, ch, sb
}
