// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package control connects the streamer to its control plane.
//
// The client keeps one Socket.IO session open, turns inbound camera events
// into transition requests and reports the current status back. Losing the
// session never touches the running pipeline; the client reconnects with
// backoff and resumes reporting.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/control/socketio"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Requester accepts transition requests.
type Requester interface {
	Request(model.TransitionRequest)
}

// Resolver turns a decision into a concrete state.
type Resolver func(kind model.StateKind, source string) (model.StreamState, bool)

// StatusFunc returns the payload reported to the control plane.
type StatusFunc func() any

// Options configures a Client.
type Options struct {
	URL            string
	Token          int
	HandshakeEvent string
	StatusEvent    string
	ReportInterval time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// StatusPerSecond and StatusBurst limit change-driven status emits.
	StatusPerSecond float64
	StatusBurst     int

	Mapper    *Mapper
	Resolve   Resolver
	Requester Requester
	Status    StatusFunc
	// Bus, when set, triggers a status report on every state or fault event.
	Bus bus.Bus
}

// OptionsFromConfig fills the connection and reporting settings from cfg.
func OptionsFromConfig(cfg config.ControlConfig) Options {
	return Options{
		URL:             socketio.URL(cfg.Host, cfg.Port, cfg.Path),
		Token:           cfg.Token,
		HandshakeEvent:  cfg.HandshakeEvent,
		StatusEvent:     cfg.StatusEvent,
		ReportInterval:  cfg.ReportInterval,
		BackoffInitial:  cfg.BackoffInitial,
		BackoffMax:      cfg.BackoffMax,
		StatusPerSecond: cfg.StatusPerSecond,
		StatusBurst:     cfg.StatusBurst,
		Mapper:          NewMapper(cfg.Mappings),
	}
}

// Client is the control-plane session owner.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *socketio.Conn

	connected atomic.Bool
	sessions  atomic.Uint64
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.StatusPerSecond <= 0 {
		opts.StatusPerSecond = 2
	}
	if opts.StatusBurst <= 0 {
		opts.StatusBurst = 5
	}
	if opts.Mapper == nil {
		opts.Mapper = NewMapper(config.DefaultMappings())
	}
	return &Client{
		opts:    opts,
		logger:  log.WithComponent("control").With().Str(log.FieldControlURL, opts.URL).Logger(),
		limiter: rate.NewLimiter(rate.Limit(opts.StatusPerSecond), opts.StatusBurst),
	}
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool { return c.connected.Load() }

// Sessions returns how many sessions were established so far.
func (c *Client) Sessions() uint64 { return c.sessions.Load() }

// Run keeps the session alive and reports status until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.reportLoop(ctx) })
	g.Go(func() error { return c.connectLoop(ctx) })
	return g.Wait()
}

func (c *Client) connectLoop(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BackoffInitial
	b.MaxInterval = c.opts.BackoffMax
	b.Reset()

	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			b.Reset()
		}
		delay := b.NextBackOff()
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "control.reconnect").
			Dur(log.FieldDelay, delay).
			Msg("control channel unavailable, reconnecting")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection until it fails. established reports whether
// the handshake completed.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, err := socketio.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		metrics.IncControlConnect(false)
		return false, fmt.Errorf("%w: dial: %v", model.ErrControlChannel, err)
	}
	metrics.IncControlConnect(true)
	c.sessions.Add(1)

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.logger.Info().
		Str(log.FieldEvent, "control.connected").
		Str("sid", conn.SID()).
		Msg("control channel connected")

	if err := c.emit(conn, c.opts.HandshakeEvent, map[string]int{"token": c.opts.Token}); err != nil {
		return true, fmt.Errorf("%w: handshake: %v", model.ErrControlChannel, err)
	}
	c.sendStatus(conn, "connect")

	for {
		p, err := conn.Next()
		if err != nil {
			if errors.Is(err, socketio.ErrClosed) {
				return true, fmt.Errorf("%w: %v", model.ErrControlChannel, err)
			}
			return true, fmt.Errorf("%w: read: %v", model.ErrControlChannel, err)
		}
		c.handle(p)
	}
}

func (c *Client) setConn(conn *socketio.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(conn != nil)
	metrics.SetControlConnected(conn != nil)
	if conn == nil {
		c.logger.Info().Str(log.FieldEvent, "control.disconnected").Msg("control channel disconnected")
	}
}

func (c *Client) current() *socketio.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) handle(p socketio.Packet) {
	ev := model.ControlEvent{Name: p.Event}
	if len(p.Args) > 0 {
		ev.Payload = p.Args[0]
	}
	logger := c.logger.With().Str("control_event", ev.Name).Logger()

	d, err := c.opts.Mapper.Map(ev)
	if err != nil {
		metrics.IncControlEvent(ev.Name, "ignored")
		logger.Debug().Err(err).Str(log.FieldEvent, "control.ignored").Msg("control event ignored")
		return
	}
	if c.opts.Resolve == nil || c.opts.Requester == nil {
		metrics.IncControlEvent(ev.Name, "ignored")
		return
	}
	st, ok := c.opts.Resolve(d.Kind, d.Source)
	if !ok {
		metrics.IncControlEvent(ev.Name, "unresolved")
		logger.Warn().
			Str(log.FieldEvent, "control.unresolved").
			Str(log.FieldTarget, string(d.Kind)).
			Msg("no source known for requested state, ignoring")
		return
	}

	req := model.ToState(st, model.OriginControl)
	req.CorrelationID = uuid.NewString()
	metrics.IncControlEvent(ev.Name, "accepted")
	logger.Info().
		Str(log.FieldEvent, "control.request").
		Str(log.FieldTarget, st.String()).
		Str(log.FieldCorrelationID, req.CorrelationID).
		Msg("control plane requested state")
	c.opts.Requester.Request(req)
}

// reportLoop emits status periodically and on every bus change.
func (c *Client) reportLoop(ctx context.Context) error {
	var changes <-chan bus.Message
	if c.opts.Bus != nil {
		merged := make(chan bus.Message, 16)
		for _, topic := range []string{bus.TopicState, bus.TopicFault} {
			sub, err := c.opts.Bus.Subscribe(ctx, topic)
			if err != nil {
				return err
			}
			go func() {
				for msg := range sub.C() {
					select {
					case merged <- msg:
					default:
					}
				}
			}()
		}
		changes = merged
	}

	t := time.NewTicker(c.opts.ReportInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.report("periodic", true)
		case <-changes:
			c.report("change", false)
		}
	}
}

// report sends the status if a session is up. Change-driven reports are rate
// limited; a suppressed one is sent with the next periodic report.
func (c *Client) report(reason string, periodic bool) {
	conn := c.current()
	if conn == nil {
		return
	}
	if !periodic && !c.limiter.Allow() {
		return
	}
	c.sendStatus(conn, reason)
}

func (c *Client) sendStatus(conn *socketio.Conn, reason string) {
	var payload any = struct{}{}
	if c.opts.Status != nil {
		payload = c.opts.Status()
	}
	if err := c.emit(conn, c.opts.StatusEvent, payload); err != nil {
		c.logger.Debug().Err(err).Str("reason", reason).Msg("status report failed")
	}
}

func (c *Client) emit(conn *socketio.Conn, event string, payload any) error {
	err := conn.Emit(event, payload)
	metrics.IncControlEmit(event, err == nil)
	return err
}
