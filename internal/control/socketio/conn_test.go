// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package socketio_test

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/control/socketio"
	"github.com/ManuGH/mtxstreamer/internal/control/socketio/sockettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *sockettest.Server) *socketio.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := socketio.Dial(ctx, srv.URL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialEmitAndReceive(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	c := dial(t, srv)
	assert.NotEmpty(t, c.SID())
	<-srv.Connects()

	require.NoError(t, c.Emit("register", map[string]int{"token": 7}))
	got := <-srv.Events()
	assert.Equal(t, "register", got.Event)
	var body map[string]int
	require.NoError(t, got.Arg(0, &body))
	assert.Equal(t, 7, body["token"])

	require.NoError(t, srv.Emit("camera", map[string]string{"camera": "available"}))
	p, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "camera", p.Event)
}

func TestNextAnswersPings(t *testing.T) {
	srv := sockettest.NewServer()
	srv.PingInterval = 20 * time.Millisecond
	srv.PingTimeout = 200 * time.Millisecond
	defer srv.Close()
	c := dial(t, srv)
	<-srv.Connects()

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = srv.Emit("state", "live")
	}()
	p, err := c.Next()
	require.NoError(t, err, "session must survive several ping rounds")
	assert.Equal(t, "state", p.Event)
}

func TestDialRejected(t *testing.T) {
	srv := sockettest.NewServer()
	srv.Reject = true
	defer srv.Close()

	_, err := socketio.Dial(context.Background(), srv.URL(), nil)
	assert.ErrorIs(t, err, socketio.ErrProtocol)
}

func TestNextFailsWhenServerDrops(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	c := dial(t, srv)
	<-srv.Connects()

	srv.Drop()
	_, err := c.Next()
	assert.Error(t, err)
}
