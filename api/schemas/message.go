package schemas

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// -- Message Schemas --

// MessageType identifies an inbound message handler.
type MessageType string

const (
	MessageUpdateDOM     MessageType = "updateDOM"
	MessageRegisterEvent MessageType = "registerEvent"
	MessageRemoveEvent   MessageType = "removeEvent"
	MessageStdout        MessageType = "stdout"
	MessageStderr        MessageType = "stderr"
	MessageError         MessageType = "error"
)

// Message is the envelope sent by the remote runtime. Which fields are
// meaningful depends on Type.
type Message struct {
	Type MessageType `json:"type"`

	// updateDOM, registerEvent, removeEvent
	Query *Query `json:"query,omitempty"`
	// updateDOM
	Target *PortableNode `json:"target,omitempty"`
	// registerEvent, removeEvent
	EventType string `json:"eventType,omitempty"`
	Listener  string `json:"listener,omitempty"`
	// stdout, stderr
	Content json.RawMessage `json:"content,omitempty"`
	// error
	Context json.RawMessage `json:"context,omitempty"`
}

// ContentText returns the stdout/stderr content as text. A JSON string is
// unquoted; any other JSON value is returned as its raw encoding.
func (m *Message) ContentText() string {
	return rawText(m.Content)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Envelope is a message split into its top-level fields, left undecoded.
// Handlers decode only the fields they read, so an unexpected shape in any
// other field never fails the message.
type Envelope map[string]json.RawMessage

// ParseEnvelope fails only when raw is not valid JSON. A valid value that is
// not an object yields an empty envelope.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var v interface{}
		if json.Unmarshal(raw, &v) == nil {
			return Envelope{}, nil
		}
		return nil, err
	}
	if env == nil {
		env = Envelope{}
	}
	return env, nil
}

// Type reads the type field. Anything but a JSON string reads as "".
func (e Envelope) Type() MessageType {
	var t string
	if raw, ok := e["type"]; ok {
		if err := json.Unmarshal(raw, &t); err != nil {
			return ""
		}
	}
	return MessageType(t)
}

// Decode unmarshals field key into v. A missing field leaves v untouched.
func (e Envelope) Decode(key string, v interface{}) error {
	raw, ok := e[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// Raw returns field key verbatim, or nil when it is absent.
func (e Envelope) Raw(key string) json.RawMessage {
	return e[key]
}

// Text is ContentText for field key.
func (e Envelope) Text(key string) string {
	return rawText(e[key])
}

// ErrorContext is the context object the bridge attaches to its own error
// signals. Type names the failure class, Msg the detail.
type ErrorContext struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

const (
	ErrorTypeMalformedMessage = "MalformedMessage"
	ErrorTypeHandlerFault     = "HandlerFault"
)

// EventPayload is what an attached listener forwards when its event fires.
type EventPayload struct {
	Type     string        `json:"type"`
	Target   *PortableNode `json:"target"`
	Listener string        `json:"listener"`
}
