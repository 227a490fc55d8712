// Package worker implements the session-multiplexing engine of an
// anvil worker process: one control channel to the parent engine, a
// heartbeat/disown liveness pair, and a table of session stream pairs each
// bound to one sandbox invocation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumeworks/anvil/internal/config"
	"github.com/lumeworks/anvil/internal/protocol"
	"github.com/lumeworks/anvil/internal/sandbox"
	"github.com/lumeworks/anvil/internal/transport/zmq"
)

// ErrDisowned is returned by Run when no heartbeat acknowledgment arrived
// within the profile timeout and the worker gave up on its engine.
var ErrDisowned = errors.New("worker has lost the controlling engine")

// streamPair binds one invocation's two directions. An entry exists in the
// session table iff the invocation started and no terminal event has been
// processed for it yet.
type streamPair struct {
	upstream   *upstream
	downstream sandbox.Stream
}

// Stats are the engine counters. They are owned by the loop goroutine; read
// them from there or after Run returns.
type Stats struct {
	Dispatched            uint64
	DroppedUnknownSession uint64
	DroppedUnknownType    uint64
}

// Options identify the worker at launch.
type Options struct {
	App     string
	Profile string
	UUID    string
}

// settings are the engine timings, injectable so tests can shrink them.
type settings struct {
	heartbeatEvery time.Duration
	disownAfter    time.Duration
	bulkSize       int
}

// Worker is the engine instance. All dispatch runs on the single goroutine
// inside Run; the session table is never touched from anywhere else.
type Worker struct {
	id  string
	log *logrus.Entry

	ch      Channel
	sandbox sandbox.Sandbox

	sessions map[string]streamPair
	stats    Stats

	heartbeatEvery time.Duration
	disownAfter    time.Duration
	bulkSize       int

	disown *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// New connects the control channel, loads the app manifest and profile, and
// constructs the sandbox. Startup is fail-fast: any fault after the channel
// is open is announced with an abnormal suicide message and returned to
// abort the process.
func New(cfg *config.Config, opts Options) (*Worker, error) {
	log := logrus.WithFields(logrus.Fields{"app": opts.App, "worker": opts.UUID})

	endpoint := fmt.Sprintf("ipc://%s/engines/%s", cfg.Paths.Runtime, opts.App)
	ch, err := zmq.Connect(endpoint, opts.UUID)
	if err != nil {
		return nil, fmt.Errorf("connect control channel: %w", err)
	}

	manifest, err := config.LoadManifest(cfg, opts.App)
	if err != nil {
		return nil, abortStartup(ch, log, err)
	}
	profile, err := config.LoadProfile(cfg, opts.Profile)
	if err != nil {
		return nil, abortStartup(ch, log, err)
	}
	sb, err := sandbox.New(manifest.Sandbox.Type, manifest.Name, manifest.Sandbox.Args)
	if err != nil {
		return nil, abortStartup(ch, log, err)
	}

	w := newWorker(opts.UUID, ch, sb, settings{
		heartbeatEvery: cfg.Worker.HeartbeatInterval(),
		disownAfter:    profile.HeartbeatTimeout(),
		bulkSize:       cfg.Worker.IOBulkSize,
	})
	w.log = log

	log.Infof("worker %s serving app %s under profile %s", opts.UUID, opts.App, profile.Name)
	return w, nil
}

// abortStartup reports a fatal bootstrap fault to the engine before the
// fault propagates to abort the process.
func abortStartup(ch Channel, log *logrus.Entry, cause error) error {
	if err := ch.Send(protocol.NewSuicide(protocol.SuicideAbnormal, cause.Error())); err != nil {
		log.Errorf("failed to report startup fault: %v", err)
	}
	if err := ch.Close(); err != nil {
		log.Errorf("failed to close control channel: %v", err)
	}
	return cause
}

// newWorker assembles the engine around an open channel and a constructed
// sandbox. The disown watchdog arms here, once the sandbox is known sound.
func newWorker(id string, ch Channel, sb sandbox.Sandbox, st settings) *Worker {
	if st.heartbeatEvery <= 0 {
		st.heartbeatEvery = 5 * time.Second
	}
	if st.disownAfter <= 0 {
		st.disownAfter = 30 * time.Second
	}
	if st.bulkSize <= 0 {
		st.bulkSize = 256
	}

	return &Worker{
		id:             id,
		log:            logrus.WithField("worker", id),
		ch:             ch,
		sandbox:        sb,
		sessions:       make(map[string]streamPair),
		heartbeatEvery: st.heartbeatEvery,
		disownAfter:    st.disownAfter,
		bulkSize:       st.bulkSize,
		disown:         time.NewTimer(st.disownAfter),
		stop:           make(chan struct{}),
	}
}

// Run drives the event loop until a terminate request, disownment, or
// context cancellation stops it. The first heartbeat goes out immediately.
func (w *Worker) Run(ctx context.Context) error {
	w.emitHeartbeat()

	heartbeat := time.NewTicker(w.heartbeatEvery)
	defer heartbeat.Stop()
	defer w.disown.Stop()
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-heartbeat.C:
			w.emitHeartbeat()
		case <-w.disown.C:
			w.log.Errorf("worker %s has lost the controlling engine", w.id)
			return ErrDisowned
		case <-w.ch.Ready():
			w.process()
			select {
			case <-w.stop:
				return nil
			default:
			}
		}
	}
}

// process drains the channel, dispatching at most bulkSize messages per pass
// so one busy channel cannot starve the loop's timers. If messages remain
// when the bound is hit, readiness is re-armed and the pass ends.
func (w *Worker) process() {
	for counter := w.bulkSize; counter > 0; counter-- {
		if w.ch.More() {
			w.log.Panicf("worker %s left a partially consumed message on the channel", w.id)
		}

		t, ok := w.ch.RecvType()
		if !ok {
			return
		}

		w.log.Debugf("worker %s received %s message", w.id, t)
		w.dispatch(t)
	}

	if w.ch.Pending() {
		w.ch.Rearm()
	}
}

func (w *Worker) dispatch(t protocol.Type) {
	w.stats.Dispatched++

	switch t {
	case protocol.Heartbeat:
		w.resetDisown()

	case protocol.Invoke:
		var session, event string
		if err := w.recvPayload(t, &session, &event); err != nil {
			return
		}
		w.onInvoke(session, event)

	case protocol.Chunk:
		var session string
		var data []byte
		if err := w.recvPayload(t, &session, &data); err != nil {
			return
		}
		w.onChunk(session, data)

	case protocol.Choke:
		var session string
		if err := w.recvPayload(t, &session); err != nil {
			return
		}
		w.onChoke(session)

	case protocol.Terminate:
		w.terminate(protocol.SuicideNormal, "per request")

	default:
		w.stats.DroppedUnknownType++
		w.log.Warnf("worker %s dropping unknown %s message", w.id, t)
		w.ch.Drop()
	}
}

// recvPayload decodes a message's declared payload and verifies the message
// carried exactly that. A short or over-long message is dropped whole so no
// partially-consumed frames survive the dispatch.
func (w *Worker) recvPayload(t protocol.Type, dst ...interface{}) error {
	if err := w.ch.RecvPayload(dst...); err != nil {
		w.dropMalformed(t, err)
		return err
	}
	if w.ch.More() {
		err := errExtraFrames
		w.dropMalformed(t, err)
		return err
	}
	return nil
}

var errExtraFrames = errors.New("message has undeclared extra frames")

func (w *Worker) dropMalformed(t protocol.Type, err error) {
	w.log.Warnf("worker %s dropping malformed %s message: %v", w.id, t, err)
	w.ch.Drop()
}

// onInvoke starts a session. A sandbox fault stays isolated to the session:
// it is reported on the just-created upstream and the session never enters
// the table.
func (w *Worker) onInvoke(session, event string) {
	up := newUpstream(session, w.ch)

	down, err := w.sandbox.Invoke(event, up)
	if err != nil {
		if uerr := up.Error(protocol.CodeInvocationError, err.Error()); uerr != nil {
			w.log.Errorf("session %s: failed to report invocation fault: %v", session, uerr)
		}
		return
	}

	w.sessions[session] = streamPair{upstream: up, downstream: down}
}

// onChunk forwards a session's input. A chunk for an unknown session may
// belong to an invocation that already failed, so it is dropped silently.
func (w *Worker) onChunk(session string, data []byte) {
	pair, ok := w.sessions[session]
	if !ok {
		w.stats.DroppedUnknownSession++
		w.log.Debugf("worker %s dropping chunk for unknown session %s", w.id, session)
		return
	}

	if err := pair.downstream.Push(data); err != nil {
		if uerr := pair.upstream.Error(protocol.CodeInvocationError, err.Error()); uerr != nil {
			w.log.Errorf("session %s: failed to report downstream fault: %v", session, uerr)
		}
		delete(w.sessions, session)
	}
}

// onChoke closes a session's downstream and retires the session. Like
// chunks, a choke for an unknown session is dropped silently.
func (w *Worker) onChoke(session string) {
	pair, ok := w.sessions[session]
	if !ok {
		w.stats.DroppedUnknownSession++
		w.log.Debugf("worker %s dropping choke for unknown session %s", w.id, session)
		return
	}

	if err := pair.downstream.Close(); err != nil {
		if uerr := pair.upstream.Error(protocol.CodeInvocationError, err.Error()); uerr != nil {
			w.log.Errorf("session %s: failed to report close fault: %v", session, uerr)
		}
	}

	delete(w.sessions, session)
}

// resetDisown pushes the disown deadline out by the profile timeout.
func (w *Worker) resetDisown() {
	if !w.disown.Stop() {
		select {
		case <-w.disown.C:
		default:
		}
	}
	w.disown.Reset(w.disownAfter)
}

// emitHeartbeat sends a liveness probe without ever blocking the loop; on a
// congested channel the beat is skipped, not queued.
func (w *Worker) emitHeartbeat() {
	if !w.ch.TrySend(protocol.NewHeartbeat()) {
		w.log.Debugf("worker %s skipped a heartbeat, channel not ready", w.id)
	}
}

// terminate announces the worker's planned death and stops the loop. It is
// the only sanctioned way to signal a planned exit; disownment exits without
// a message.
func (w *Worker) terminate(reason int, cause string) {
	if err := w.ch.Send(protocol.NewSuicide(reason, cause)); err != nil {
		w.log.Errorf("worker %s failed to send suicide message: %v", w.id, err)
	}
	w.stopLoop()
}

func (w *Worker) stopLoop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// shutdown tears down any sessions still live when the loop stops and
// releases the channel.
func (w *Worker) shutdown() {
	for id, pair := range w.sessions {
		if err := pair.downstream.Close(); err != nil && !errors.Is(err, sandbox.ErrStreamClosed) {
			w.log.Debugf("session %s: downstream close: %v", id, err)
		}
		if err := pair.upstream.release(); err != nil {
			w.log.Errorf("session %s: upstream close: %v", id, err)
		}
		delete(w.sessions, id)
	}

	if err := w.ch.Close(); err != nil {
		w.log.Errorf("worker %s: control channel close: %v", w.id, err)
	}
}

// Stats returns a snapshot of the engine counters.
func (w *Worker) Stats() Stats {
	return w.stats
}
