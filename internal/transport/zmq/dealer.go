// Package zmq implements the worker's control channel over a ZeroMQ DEALER
// socket wrapped in a goczmq.Channeler.
package zmq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/zeromq/goczmq.v4"

	"github.com/lumeworks/anvil/internal/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("control channel is closed")

// Dealer is the worker side of the control channel. A pump goroutine copies
// inbound multiparts from the channeler into an inbox and signals readiness;
// all receive operations are non-blocking pops from that inbox, one frame at
// a time so partially-consumed messages stay observable.
//
// Every outbound multipart leads with the worker identity frame, the same
// routing convention the engine's router side keys its session table on.
type Dealer struct {
	channeler *goczmq.Channeler
	id        string
	log       *logrus.Entry

	mu     sync.Mutex
	inbox  [][][]byte // received messages not yet popped
	cur    [][]byte   // frames of the message being consumed
	pos    int
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// Connect opens the control channel to the engine endpoint, e.g.
// "ipc:///var/run/anvil/engines/<app>".
func Connect(endpoint, id string) (*Dealer, error) {
	channeler := goczmq.NewDealerChanneler(endpoint)
	if channeler == nil {
		return nil, fmt.Errorf("create dealer channeler for %s", endpoint)
	}
	if channeler.SendChan == nil || channeler.RecvChan == nil {
		channeler.Destroy()
		return nil, fmt.Errorf("dealer channeler for %s has no channels", endpoint)
	}

	d := &Dealer{
		channeler: channeler,
		id:        id,
		log:       logrus.WithField("worker", id),
		ready:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go d.pump()

	d.log.Debugf("control channel connected to %s", endpoint)
	return d, nil
}

// pump moves inbound messages from the channeler into the inbox.
func (d *Dealer) pump() {
	for {
		select {
		case <-d.done:
			return
		case msg, ok := <-d.channeler.RecvChan:
			if !ok {
				d.log.Debug("control channel receive side closed")
				return
			}
			if len(msg) == 0 {
				continue
			}
			d.mu.Lock()
			d.inbox = append(d.inbox, msg)
			d.mu.Unlock()
			d.Rearm()
		}
	}
}

// Ready signals that inbound messages may be queued. The channel has
// capacity one; a drain pass consumes the token and calls Rearm if it quit
// with messages still pending.
func (d *Dealer) Ready() <-chan struct{} {
	return d.ready
}

// Rearm re-raises the readiness notification without delivering a message.
func (d *Dealer) Rearm() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Pending reports whether inbound messages are queued.
func (d *Dealer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inbox) > 0
}

// RecvType pops the next queued message and decodes its type tag. It never
// blocks; ok is false when nothing is queued. A message with an undecodable
// tag is surfaced with an out-of-range type so the dispatcher drops it.
func (d *Dealer) RecvType() (protocol.Type, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.inbox) == 0 {
		return 0, false
	}
	d.cur, d.inbox = d.inbox[0], d.inbox[1:]
	d.pos = 1

	tag, err := protocol.DecodeType(d.cur[0])
	if err != nil {
		d.log.Warnf("received message with undecodable tag: %v", err)
		return protocol.Type(-1), true
	}
	return tag, true
}

// RecvPayload decodes the remaining frames of the current message into the
// given pointers, consuming them in order.
func (d *Dealer) RecvPayload(dst ...interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, p := range dst {
		if d.cur == nil || d.pos >= len(d.cur) {
			return fmt.Errorf("message has no frame for payload argument %d", i)
		}
		if err := protocol.DecodeFrame(d.cur[d.pos], p); err != nil {
			return fmt.Errorf("decode payload frame %d: %w", d.pos-1, err)
		}
		d.pos++
	}

	if d.pos >= len(d.cur) {
		d.cur, d.pos = nil, 0
	}
	return nil
}

// More reports whether the current message still has unconsumed frames.
func (d *Dealer) More() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur != nil && d.pos < len(d.cur)
}

// Drop discards the unconsumed remainder of the current message.
func (d *Dealer) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cur, d.pos = nil, 0
}

// Send queues an outbound message, waiting for the channeler to accept it.
func (d *Dealer) Send(m protocol.Message) error {
	frames, err := d.marshal(m)
	if err != nil {
		return err
	}

	select {
	case d.channeler.SendChan <- frames:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

// TrySend performs a zero-wait send; false means the message was skipped.
func (d *Dealer) TrySend(m protocol.Message) bool {
	frames, err := d.marshal(m)
	if err != nil {
		d.log.Warnf("dropping unmarshalable %s message: %v", m.Type, err)
		return false
	}

	select {
	case d.channeler.SendChan <- frames:
		return true
	case <-d.done:
		return false
	default:
		return false
	}
}

func (d *Dealer) marshal(m protocol.Message) ([][]byte, error) {
	frames, err := m.Frames()
	if err != nil {
		return nil, err
	}
	return append([][]byte{[]byte(d.id)}, frames...), nil
}

// Close destroys the channeler and releases the socket.
func (d *Dealer) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.channeler.Destroy()
	d.log.Debug("control channel closed")
	return nil
}
