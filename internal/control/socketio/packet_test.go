// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package socketio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	p, err := Decode([]byte(`42["camera",{"camera":"available"}]`))
	require.NoError(t, err)
	assert.Equal(t, KindEvent, p.Kind)
	assert.Equal(t, "/", p.Namespace)
	assert.Equal(t, "camera", p.Event)
	require.Len(t, p.Args, 1)
	assert.JSONEq(t, `{"camera":"available"}`, string(p.Args[0]))
}

func TestDecodeEventWithNamespaceAndAckID(t *testing.T) {
	p, err := Decode([]byte(`42/admin,17["state","live"]`))
	require.NoError(t, err)
	assert.Equal(t, "/admin", p.Namespace)
	assert.Equal(t, "state", p.Event)
	var v string
	require.NoError(t, json.Unmarshal(p.Args[0], &v))
	assert.Equal(t, "live", v)
}

func TestDecodeControlFrames(t *testing.T) {
	cases := map[string]Kind{
		"1":                                 KindClose,
		"2":                                 KindPing,
		"3":                                 KindPong,
		"6":                                 KindNoop,
		`40{"sid":"abc"}`:                   KindConnect,
		"41":                                KindDisconnect,
		`44{"message":"nope"}`:              KindConnectError,
		`0{"sid":"x","pingInterval":25000}`: KindOpen,
	}
	for frame, want := range cases {
		p, err := Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, want, p.Kind, frame)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, frame := range []string{"", "9", "4", "42", "42[]", "42[1]", "42{bad", "47"} {
		_, err := Decode([]byte(frame))
		assert.ErrorIs(t, err, ErrProtocol, frame)
	}
}

func TestEncode(t *testing.T) {
	frame, err := EncodeEvent("register", map[string]int{"token": 123})
	require.NoError(t, err)
	assert.Equal(t, `42["register",{"token":123}]`, string(frame))

	frame, err = EncodeConnect(nil)
	require.NoError(t, err)
	assert.Equal(t, "40", string(frame))

	assert.Equal(t, `40{"sid":"s1"}`, string(EncodeConnected("s1")))
	assert.Equal(t, "3", string(Pong()))
}

func TestOpenInfoHeartbeatWindow(t *testing.T) {
	var info OpenInfo
	require.NoError(t, json.Unmarshal([]byte(`{"sid":"x","pingInterval":25000,"pingTimeout":20000}`), &info))
	assert.Equal(t, 45*time.Second, info.HeartbeatWindow())
}

func TestURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:3000/socket.io/?EIO=4&transport=websocket", URL("127.0.0.1", 3000, "/socket.io/"))
}
