package sandbox

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler begins one invocation of an in-process event handler. It receives
// the session's upstream sink and returns the downstream handle that will be
// fed the session's input.
type Handler func(upstream Stream) (Stream, error)

var (
	handlersMu      sync.RWMutex
	defaultHandlers = make(map[string]Handler)
)

// Handle registers an event handler for native sandboxes built after the
// call. Typically invoked from the embedding binary before worker startup.
func Handle(event string, handler Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	defaultHandlers[event] = handler
}

// Native dispatches events to Go handlers registered in-process.
type Native struct {
	name     string
	log      *logrus.Entry
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewNative(name string) *Native {
	n := &Native{
		name:     name,
		log:      logrus.WithField("sandbox", name),
		handlers: make(map[string]Handler),
	}

	handlersMu.RLock()
	for event, handler := range defaultHandlers {
		n.handlers[event] = handler
	}
	handlersMu.RUnlock()

	return n
}

// Handle registers an event handler on this sandbox instance only.
func (n *Native) Handle(event string, handler Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[event] = handler
}

func (n *Native) Invoke(event string, upstream Stream) (Stream, error) {
	n.mu.RLock()
	handler, ok := n.handlers[event]
	n.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event %q", event)
	}

	n.log.Debugf("sandbox %s invoking event %q", n.name, event)
	return handler(upstream)
}

func init() {
	Register("native", func(name string, args map[string]interface{}) (Sandbox, error) {
		return NewNative(name), nil
	})
}
