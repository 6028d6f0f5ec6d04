package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	env, err := Encode(MsgChange, Change{Data: []byte{1, 2, 3}, Timestamp: 1722600000000, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, MsgChange, env.Type)

	wire, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(wire, &decoded))
	assert.Equal(t, MsgChange, decoded.Type)

	var c Change
	require.NoError(t, json.Unmarshal(decoded.Payload, &c))
	assert.Equal(t, []byte{1, 2, 3}, c.Data)
	assert.Equal(t, int64(1722600000000), c.Timestamp)
	assert.Equal(t, "u1", c.UserID)
}

func TestEnvelopeTypeTagOnWire(t *testing.T) {
	env, err := Encode(MsgHandshake, Handshake{PeerID: "p", WorkspaceID: "w"})
	require.NoError(t, err)

	wire, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"type":"handshake"`)
	assert.Contains(t, string(wire), `"peer_id":"p"`)
}

func TestHeartbeatHasNoPayloadFields(t *testing.T) {
	wire, err := json.Marshal(Envelope{Type: MsgHeartbeat})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat"}`, string(wire))
}
