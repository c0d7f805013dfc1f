// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package socketio implements the client side of Socket.IO v5 over the
// Engine.IO v4 websocket transport. Only the default namespace, events and
// heartbeats are supported; binary attachments and acks are not.
package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrProtocol reports a malformed or unexpected packet.
var ErrProtocol = errors.New("socket.io protocol error")

// Engine.IO packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO packet types, carried inside Engine.IO messages.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

// Kind classifies a decoded packet.
type Kind int

const (
	KindOpen Kind = iota
	KindClose
	KindPing
	KindPong
	KindNoop
	KindConnect
	KindDisconnect
	KindEvent
	KindAck
	KindConnectError
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindNoop:
		return "noop"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindEvent:
		return "event"
	case KindAck:
		return "ack"
	case KindConnectError:
		return "connect_error"
	}
	return "unknown"
}

// Packet is one decoded frame.
type Packet struct {
	Kind      Kind
	Namespace string
	// Event and Args are set for KindEvent.
	Event string
	Args  []json.RawMessage
	// Data holds the raw JSON body of open, connect and connect_error packets.
	Data json.RawMessage
}

// OpenInfo is the Engine.IO handshake payload.
type OpenInfo struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// HeartbeatWindow is how long the peer may stay silent before the
// connection counts as dead.
func (o OpenInfo) HeartbeatWindow() time.Duration {
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}

// Decode parses a text frame.
func Decode(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	body := frame[1:]
	switch frame[0] {
	case engineOpen:
		return Packet{Kind: KindOpen, Data: json.RawMessage(body)}, nil
	case engineClose:
		return Packet{Kind: KindClose}, nil
	case enginePing:
		return Packet{Kind: KindPing}, nil
	case enginePong:
		return Packet{Kind: KindPong}, nil
	case engineNoop, engineUpgrade:
		return Packet{Kind: KindNoop}, nil
	case engineMessage:
		return decodeSocket(body)
	}
	return Packet{}, fmt.Errorf("%w: unknown engine packet type %q", ErrProtocol, frame[0])
}

func decodeSocket(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, fmt.Errorf("%w: empty socket packet", ErrProtocol)
	}
	typ, rest := b[0], string(b[1:])

	p := Packet{Namespace: "/"}
	if strings.HasPrefix(rest, "/") {
		ns, tail, found := strings.Cut(rest, ",")
		if !found {
			ns, tail = rest, ""
		}
		p.Namespace, rest = ns, tail
	}
	// Skip an ack id.
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	rest = rest[i:]

	switch typ {
	case socketConnect:
		p.Kind = KindConnect
		p.Data = json.RawMessage(rest)
	case socketDisconnect:
		p.Kind = KindDisconnect
	case socketConnectError:
		p.Kind = KindConnectError
		p.Data = json.RawMessage(rest)
	case socketAck:
		p.Kind = KindAck
	case socketEvent:
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return Packet{}, fmt.Errorf("%w: event body: %v", ErrProtocol, err)
		}
		if len(args) == 0 {
			return Packet{}, fmt.Errorf("%w: event without name", ErrProtocol)
		}
		if err := json.Unmarshal(args[0], &p.Event); err != nil {
			return Packet{}, fmt.Errorf("%w: event name: %v", ErrProtocol, err)
		}
		p.Kind = KindEvent
		p.Args = args[1:]
	default:
		return Packet{}, fmt.Errorf("%w: unknown socket packet type %q", ErrProtocol, typ)
	}
	return p, nil
}

// EncodeEvent renders an event on the default namespace.
func EncodeEvent(name string, args ...any) ([]byte, error) {
	parts := make([]any, 0, 1+len(args))
	parts = append(parts, name)
	parts = append(parts, args...)
	body, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return append([]byte{engineMessage, socketEvent}, body...), nil
}

// EncodeConnect renders a namespace connect packet with an optional auth payload.
func EncodeConnect(auth any) ([]byte, error) {
	out := []byte{engineMessage, socketConnect}
	if auth == nil {
		return out, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// Pong is the reply to a server ping.
func Pong() []byte { return []byte{enginePong} }

// Ping is a server ping frame.
func Ping() []byte { return []byte{enginePing} }

// Close is the Engine.IO close frame.
func Close() []byte { return []byte{engineClose} }

// EncodeOpen renders an Engine.IO open packet.
func EncodeOpen(info OpenInfo) []byte {
	body, _ := json.Marshal(info)
	return append([]byte{engineOpen}, body...)
}

// EncodeConnected renders the server's namespace connect acknowledgement.
func EncodeConnected(sid string) []byte {
	return []byte(string([]byte{engineMessage, socketConnect}) + `{"sid":` + strconv.Quote(sid) + `}`)
}

// EncodeConnectError renders a namespace connect refusal.
func EncodeConnectError(message string) []byte {
	body, _ := json.Marshal(map[string]string{"message": message})
	return append([]byte{engineMessage, socketConnectError}, body...)
}
