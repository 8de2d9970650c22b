// Package dispatch implements the worker message protocol used to drive
// an engine from outside its own goroutine: a flat command table keyed by
// name, each handler taking a decoded payload and returning a
// result or an error, with every call optionally acknowledged back to the
// caller by an ack id. One command name maps to one Handler, registered
// once at startup and invoked by Handle for every inbound Message.
//
// The wire shape is positional: an inbound frame is ["<command>", payload?,
// ack_id?] (a bare JSON string normalizes to [str]); the outbound ack frame
// is ["ack", ack_id, result].
package dispatch

import (
	"encoding/json"
	"fmt"
)

// Message is one inbound request to the dispatcher: a command name, an
// opaque payload the handler decodes itself, and an optional ack id the
// caller uses to correlate the eventual result. AckID is nil when the
// caller wants no ack frame back.
type Message struct {
	Command string
	Payload any
	AckID   any
}

// UnmarshalJSON accepts the positional frame ["cmd", payload?, ack_id?] and
// normalizes a bare string "cmd" to ["cmd"].
func (m *Message) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Message{Command: s}
		return nil
	}
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("dispatch: message must be a string or an array: %w", err)
	}
	if len(arr) == 0 {
		return fmt.Errorf("dispatch: empty message frame")
	}
	cmd, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("dispatch: command must be a string, got %T", arr[0])
	}
	*m = Message{Command: cmd}
	if len(arr) > 1 {
		m.Payload = arr[1]
	}
	if len(arr) > 2 {
		m.AckID = arr[2]
	}
	return nil
}

// MarshalJSON emits the positional frame, omitting trailing slots the
// message does not use.
func (m Message) MarshalJSON() ([]byte, error) {
	arr := []any{m.Command}
	if m.Payload != nil || m.AckID != nil {
		arr = append(arr, m.Payload)
	}
	if m.AckID != nil {
		arr = append(arr, m.AckID)
	}
	return json.Marshal(arr)
}

// Ack is the response emitted once a Message with a non-nil AckID has been
// handled. Result holds the handler's return value on success; Error holds
// its error's message on failure, carried on the wire as {"error": text} in
// the result slot so the frame stays ["ack", ack_id, result]-shaped either
// way.
type Ack struct {
	AckID  any
	Result any
	Error  string
}

// MarshalJSON emits ["ack", ack_id, result].
func (a Ack) MarshalJSON() ([]byte, error) {
	result := a.Result
	if a.Error != "" {
		result = map[string]any{"error": a.Error}
	}
	return json.Marshal([]any{"ack", a.AckID, result})
}

// UnmarshalJSON parses an ["ack", ack_id, result] frame.
func (a *Ack) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 2 || arr[0] != "ack" {
		return fmt.Errorf("dispatch: not an ack frame")
	}
	*a = Ack{AckID: arr[1]}
	if len(arr) > 2 {
		if m, ok := arr[2].(map[string]any); ok {
			if msg, ok := m["error"].(string); ok {
				a.Error = msg
				return nil
			}
		}
		a.Result = arr[2]
	}
	return nil
}

// Frame builds an outbound non-ack frame such as ["main_clear"] or
// ["main_add", parts...] for hosts that also push unsolicited messages.
func Frame(command string, parts ...any) ([]byte, error) {
	arr := append([]any{command}, parts...)
	return json.Marshal(arr)
}

// Handler processes one command's payload and returns a JSON-marshalable
// result, or an error.
type Handler func(payload any) (any, error)

// Dispatcher is a flat, registration-order-independent command table. It
// carries no state of its own beyond the table; callers wire it to
// whatever transport (stdin/stdout, a channel, a websocket) delivers
// Messages.
type Dispatcher struct {
	handlers map[string]Handler
}

// New returns an empty Dispatcher with the built-in "ping" and "start"
// commands already registered.
func New() *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	d.Register("ping", func(payload any) (any, error) {
		return "pong", nil
	})
	d.Register("start", func(payload any) (any, error) {
		return "started", nil
	})
	return d
}

// Register adds or replaces the handler for command. Registering over an
// existing command is allowed; hosts rebuild their tables wholesale at
// startup rather than guarding against redefinition.
func (d *Dispatcher) Register(command string, h Handler) {
	d.handlers[command] = h
}

// Handle looks up msg.Command and invokes its handler, returning an Ack iff
// msg.AckID is set. A command with no registered handler produces an Ack
// carrying that fact as an error rather than panicking, since the message
// is attacker- or at least caller-controlled input. When AckID is nil, the
// result is still computed (for handler-side effects) but Handle returns
// nil so the caller does not emit a frame nobody asked for.
func (d *Dispatcher) Handle(msg Message) *Ack {
	h, ok := d.handlers[msg.Command]
	if !ok {
		return d.ackError(msg.AckID, fmt.Errorf("unknown command %q", msg.Command))
	}

	result, err := h(msg.Payload)
	if err != nil {
		return d.ackError(msg.AckID, err)
	}
	if msg.AckID == nil {
		return nil
	}
	return &Ack{AckID: msg.AckID, Result: result}
}

func (d *Dispatcher) ackError(ackID any, err error) *Ack {
	if ackID == nil {
		return nil
	}
	return &Ack{AckID: ackID, Error: err.Error()}
}

// HandleJSON decodes a JSON-encoded Message, dispatches it, and returns the
// JSON encoding of the resulting Ack (or nil bytes if there is none to
// emit) — the shape a transport layer receiving raw frames actually wants.
func (d *Dispatcher) HandleJSON(raw []byte) ([]byte, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("dispatch: invalid message: %w", err)
	}
	ack := d.Handle(msg)
	if ack == nil {
		return nil, nil
	}
	return json.Marshal(ack)
}

// Commands returns the set of currently registered command names, mostly
// useful for diagnostics and tests.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}
