package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPing(t *testing.T) {
	d := New()
	ack := d.Handle(Message{Command: "ping", AckID: "1"})
	require.NotNil(t, ack)
	assert.Empty(t, ack.Error)
	assert.Equal(t, "pong", ack.Result)
}

func TestUnknownCommandProducesErrorAck(t *testing.T) {
	d := New()
	ack := d.Handle(Message{Command: "nope", AckID: "2"})
	require.NotNil(t, ack)
	assert.NotEmpty(t, ack.Error)
	assert.Nil(t, ack.Result)
}

func TestNoAckIDProducesNoFrame(t *testing.T) {
	d := New()
	assert.Nil(t, d.Handle(Message{Command: "ping"}))
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	d := New()
	d.Register("ping", func(payload any) (any, error) {
		return "overridden", nil
	})
	ack := d.Handle(Message{Command: "ping", AckID: "3"})
	require.NotNil(t, ack)
	assert.Equal(t, "overridden", ack.Result)
}

func TestHandlerErrorSurfacesAsAckError(t *testing.T) {
	d := New()
	boom := errors.New("boom")
	d.Register("boom", func(payload any) (any, error) {
		return nil, boom
	})
	ack := d.Handle(Message{Command: "boom", AckID: "4"})
	require.NotNil(t, ack)
	assert.Equal(t, boom.Error(), ack.Error)
}

func TestPositionalFrameDecoding(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`["look", {"dir": "north"}, "7"]`), &msg))
	assert.Equal(t, "look", msg.Command)
	assert.Equal(t, map[string]any{"dir": "north"}, msg.Payload)
	assert.Equal(t, "7", msg.AckID)
}

func TestBareStringNormalizesToCommandOnly(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`"ping"`), &msg))
	assert.Equal(t, Message{Command: "ping"}, msg)
}

func TestAckFrameShape(t *testing.T) {
	out, err := json.Marshal(Ack{AckID: "9", Result: "pong"})
	require.NoError(t, err)
	assert.JSONEq(t, `["ack", "9", "pong"]`, string(out))

	out, err = json.Marshal(Ack{AckID: "9", Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `["ack", "9", {"error": "boom"}]`, string(out))
}

func TestHandleJSONRoundTrip(t *testing.T) {
	d := New()
	out, err := d.HandleJSON([]byte(`["ping", null, "5"]`))
	require.NoError(t, err)
	var ack Ack
	require.NoError(t, json.Unmarshal(out, &ack))
	assert.Equal(t, "5", ack.AckID)
	assert.Equal(t, "pong", ack.Result)
}

func TestHandleJSONInvalidPayload(t *testing.T) {
	d := New()
	_, err := d.HandleJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestFrameBuildsOutboundMessages(t *testing.T) {
	out, err := Frame("main_clear")
	require.NoError(t, err)
	assert.JSONEq(t, `["main_clear"]`, string(out))

	out, err = Frame("main_add", "some text")
	require.NoError(t, err)
	assert.JSONEq(t, `["main_add", "some text"]`, string(out))
}

func TestCommandsListsRegistered(t *testing.T) {
	d := New()
	names := d.Commands()
	assert.Contains(t, names, "ping")
	assert.Contains(t, names, "start")
}
