// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Next when the server closed the session.
var ErrClosed = errors.New("socket.io session closed by server")

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// URL builds the websocket endpoint for host, port and path.
func URL(host string, port int, path string) string {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     path,
		RawQuery: "EIO=4&transport=websocket",
	}
	return u.String()
}

// Conn is an established Socket.IO session. Next must be called from a
// single goroutine; Emit is safe for concurrent use.
type Conn struct {
	ws   *websocket.Conn
	info OpenInfo
	sid  string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the websocket, completes the Engine.IO handshake and connects
// to the default namespace. auth is sent with the connect packet when non-nil.
func Dial(ctx context.Context, rawURL string, auth any) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	c := &Conn{ws: ws}
	if err := c.handshake(ctx, auth); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context, auth any) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)

	p, err := c.read()
	if err != nil {
		return err
	}
	if p.Kind != KindOpen {
		return fmt.Errorf("%w: expected open packet, got %s", ErrProtocol, p.Kind)
	}
	if err := json.Unmarshal(p.Data, &c.info); err != nil {
		return fmt.Errorf("%w: open payload: %v", ErrProtocol, err)
	}

	frame, err := EncodeConnect(auth)
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return err
	}

	for {
		p, err := c.read()
		if err != nil {
			return err
		}
		switch p.Kind {
		case KindConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(p.Data, &ack)
			c.sid = ack.SID
			return nil
		case KindConnectError:
			return fmt.Errorf("%w: connect refused: %s", ErrProtocol, p.Data)
		case KindPing:
			if err := c.write(Pong()); err != nil {
				return err
			}
		case KindClose:
			return ErrClosed
		}
	}
}

// Info returns the Engine.IO handshake parameters.
func (c *Conn) Info() OpenInfo { return c.info }

// SID is the namespace session id.
func (c *Conn) SID() string { return c.sid }

// Next blocks until the next event arrives. Pings are answered and the
// read deadline is extended on every frame.
func (c *Conn) Next() (Packet, error) {
	for {
		if w := c.info.HeartbeatWindow(); w > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(w))
		} else {
			_ = c.ws.SetReadDeadline(time.Time{})
		}
		p, err := c.read()
		if err != nil {
			return Packet{}, err
		}
		switch p.Kind {
		case KindPing:
			if err := c.write(Pong()); err != nil {
				return Packet{}, err
			}
		case KindClose, KindDisconnect:
			return Packet{}, ErrClosed
		case KindEvent:
			return p, nil
		}
	}
}

// Emit sends an event.
func (c *Conn) Emit(event string, args ...any) error {
	frame, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Close ends the session. It is safe to call more than once and unblocks Next.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.write(Close())
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) read() (Packet, error) {
	typ, frame, err := c.ws.ReadMessage()
	if err != nil {
		return Packet{}, err
	}
	if typ != websocket.TextMessage {
		return Packet{Kind: KindNoop}, nil
	}
	return Decode(frame)
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
