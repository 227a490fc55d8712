package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Type is the wire tag carried in the first frame of every control message.
type Type int

const (
	Heartbeat Type = 1
	Suicide   Type = 2
	Terminate Type = 3
	Invoke    Type = 4
	Chunk     Type = 5
	Error     Type = 6
	Choke     Type = 7
)

func (t Type) String() string {
	switch t {
	case Heartbeat:
		return "heartbeat"
	case Suicide:
		return "suicide"
	case Terminate:
		return "terminate"
	case Invoke:
		return "invoke"
	case Chunk:
		return "chunk"
	case Error:
		return "error"
	case Choke:
		return "choke"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Suicide reasons carried in the final self-termination message.
const (
	SuicideNormal   = 0
	SuicideAbnormal = 1
)

// Error codes carried in session error messages.
const (
	CodeInvocationError = 1
	CodeResourceError   = 2
	CodeTimeoutError    = 3
)

// Message is one fully-built control message: a type tag plus its payload
// arguments in declared order. On the wire each argument occupies its own
// msgpack-encoded frame after the tag frame.
type Message struct {
	Type Type
	Args []interface{}
}

func NewHeartbeat() Message {
	return Message{Type: Heartbeat}
}

func NewSuicide(reason int, cause string) Message {
	return Message{Type: Suicide, Args: []interface{}{reason, cause}}
}

func NewTerminate() Message {
	return Message{Type: Terminate}
}

func NewInvoke(session, event string) Message {
	return Message{Type: Invoke, Args: []interface{}{session, event}}
}

func NewChunk(session string, data []byte) Message {
	return Message{Type: Chunk, Args: []interface{}{session, data}}
}

func NewError(session string, code int, message string) Message {
	return Message{Type: Error, Args: []interface{}{session, code, message}}
}

func NewChoke(session string) Message {
	return Message{Type: Choke, Args: []interface{}{session}}
}

// Frames marshals the message into its multipart wire form.
func (m Message) Frames() ([][]byte, error) {
	frames := make([][]byte, 0, len(m.Args)+1)

	tag, err := msgpack.Marshal(int(m.Type))
	if err != nil {
		return nil, fmt.Errorf("marshal %s tag: %w", m.Type, err)
	}
	frames = append(frames, tag)

	for i, arg := range m.Args {
		enc, err := msgpack.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal %s argument %d: %w", m.Type, i, err)
		}
		frames = append(frames, enc)
	}
	return frames, nil
}

// DecodeType decodes a message's tag frame.
func DecodeType(frame []byte) (Type, error) {
	var tag int
	if err := msgpack.Unmarshal(frame, &tag); err != nil {
		return 0, fmt.Errorf("decode message tag: %w", err)
	}
	return Type(tag), nil
}

// DecodeFrame decodes one payload frame into dst, which must be a pointer.
func DecodeFrame(frame []byte, dst interface{}) error {
	return msgpack.Unmarshal(frame, dst)
}
