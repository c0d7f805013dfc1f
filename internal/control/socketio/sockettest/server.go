// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sockettest provides an in-process Socket.IO server for tests.
package sockettest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/control/socketio"
	"github.com/gorilla/websocket"
)

// Received is an event sent by a client.
type Received struct {
	Event string
	Args  []json.RawMessage
}

// Arg decodes argument i into v.
func (r Received) Arg(i int, v any) error {
	if i >= len(r.Args) {
		return fmt.Errorf("event %s has %d args", r.Event, len(r.Args))
	}
	return json.Unmarshal(r.Args[i], v)
}

// Server accepts Socket.IO websocket sessions and records client events.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	// PingInterval is advertised in the open packet. Pings are sent at this rate.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// Reject makes the namespace connect fail.
	Reject bool

	mu       sync.Mutex
	conns    map[*websocket.Conn]*sync.Mutex
	accepted int
	events   chan Received
	connects chan struct{}
	wg       sync.WaitGroup
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		conns:        make(map[*websocket.Conn]*sync.Mutex),
		events:       make(chan Received, 256),
		connects:     make(chan struct{}, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the websocket endpoint under path /socket.io/.
func (s *Server) URL() string {
	host, port := s.HostPort()
	return socketio.URL(host, port, "/socket.io/")
}

// HostPort returns the listener address.
func (s *Server) HostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Events delivers client events in arrival order.
func (s *Server) Events() <-chan Received { return s.events }

// Connects receives a value for every completed namespace connect.
func (s *Server) Connects() <-chan struct{} { return s.connects }

// Accepted returns how many sessions completed the connect handshake.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Emit sends an event to every connected client.
func (s *Server) Emit(event string, args ...any) error {
	frame, err := socketio.EncodeEvent(event, args...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, wmu := range s.conns {
		wmu.Lock()
		err = c.WriteMessage(websocket.TextMessage, frame)
		wmu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Drop closes every session without a close packet.
func (s *Server) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

// Close drops all sessions and stops the listener.
func (s *Server) Close() {
	s.Drop()
	s.srv.Close()
	s.wg.Wait()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer c.Close()

	wmu := &sync.Mutex{}
	write := func(frame []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		return c.WriteMessage(websocket.TextMessage, frame)
	}

	sid := strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := write(socketio.EncodeOpen(socketio.OpenInfo{
		SID:          sid,
		PingInterval: int(s.PingInterval / time.Millisecond),
		PingTimeout:  int(s.PingTimeout / time.Millisecond),
		MaxPayload:   1e6,
	})); err != nil {
		return
	}

	_, frame, err := c.ReadMessage()
	if err != nil {
		return
	}
	if p, err := socketio.Decode(frame); err != nil || p.Kind != socketio.KindConnect {
		return
	}
	if s.Reject {
		_ = write(socketio.EncodeConnectError("not authorized"))
		return
	}
	if err := write(socketio.EncodeConnected(sid)); err != nil {
		return
	}

	s.mu.Lock()
	s.conns[c] = wmu
	s.accepted++
	s.mu.Unlock()
	select {
	case s.connects <- struct{}{}:
	default:
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(s.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if write(socketio.Ping()) != nil {
					return
				}
			}
		}
	}()

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
			return
		}
		p, err := socketio.Decode(frame)
		if err != nil || p.Kind != socketio.KindEvent {
			continue
		}
		select {
		case s.events <- Received{Event: p.Event, Args: p.Args}:
		default:
		}
	}
}
