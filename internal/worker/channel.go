package worker

import "github.com/lumeworks/anvil/internal/protocol"

// Channel is the control channel to the parent engine as the worker consumes
// it: ordered, reliable delivery of discrete typed messages, non-blocking
// receive with per-frame consumption, and a re-armable readiness signal.
// The production implementation is transport/zmq.Dealer.
type Channel interface {
	// Ready signals queued inbound messages. Capacity one: a drain pass
	// consumes the token and calls Rearm when it stops early.
	Ready() <-chan struct{}
	// Rearm re-raises the readiness signal without delivering a message.
	Rearm()
	// Pending reports whether inbound messages are queued.
	Pending() bool

	// RecvType pops the next message and decodes its tag; ok is false when
	// nothing is queued. Never blocks.
	RecvType() (t protocol.Type, ok bool)
	// RecvPayload decodes the current message's remaining frames, in order,
	// into the given pointers.
	RecvPayload(dst ...interface{}) error
	// More reports whether the current message has unconsumed frames.
	More() bool
	// Drop discards the unconsumed remainder of the current message.
	Drop()

	// Send queues an outbound message.
	Send(m protocol.Message) error
	// TrySend performs a zero-wait send; false means the message was skipped.
	TrySend(m protocol.Message) bool

	Close() error
}
