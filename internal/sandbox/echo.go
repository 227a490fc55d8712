package sandbox

// Echo answers every event by reflecting the session's input back upstream.
// Useful for smoke-testing a deployment without shipping application code.
type Echo struct {
	name string
}

func NewEcho(name string) *Echo {
	return &Echo{name: name}
}

func (e *Echo) Invoke(event string, upstream Stream) (Stream, error) {
	return &echoStream{upstream: upstream}, nil
}

// echoStream forwards its input verbatim to the session's upstream.
type echoStream struct {
	upstream Stream
}

func (s *echoStream) Push(data []byte) error {
	return s.upstream.Push(data)
}

func (s *echoStream) Error(code int, message string) error {
	return s.upstream.Error(code, message)
}

func (s *echoStream) Close() error {
	return s.upstream.Close()
}

func init() {
	Register("echo", func(name string, args map[string]interface{}) (Sandbox, error) {
		return NewEcho(name), nil
	})
}
