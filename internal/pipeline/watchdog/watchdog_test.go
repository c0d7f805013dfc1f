// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *mockTicker
	ready  chan struct{}
	acks   chan struct{}
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Now(), ready: make(chan struct{}), acks: make(chan struct{})}
}

func (m *mockClock) Now() time.Time { m.mu.Lock(); defer m.mu.Unlock(); return m.now }

func (m *mockClock) NewTicker(time.Duration) ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticker = &mockTicker{c: make(chan time.Time)}
	close(m.ready)
	return m.ticker
}

func (m *mockClock) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *mockClock) ack() { m.acks <- struct{}{} }

// tick blocks until the watchdog loop has checked the tick.
func (m *mockClock) tick() {
	<-m.ready
	m.ticker.c <- m.Now()
	<-m.acks
}

type mockTicker struct {
	c chan time.Time
}

func (m *mockTicker) C() <-chan time.Time { return m.c }
func (m *mockTicker) Stop()               {}

func run(w *Watchdog) (<-chan error, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return errCh, cancel
}

func TestWatchdogStartTimeout(t *testing.T) {
	clock := newMockClock()
	w := New(2*time.Second, 5*time.Second)
	w.clock = clock
	w.checked = clock.ack
	errCh, cancel := run(w)
	defer cancel()

	clock.tick()
	clock.advance(3 * time.Second)
	clock.tick()

	err := <-errCh
	assert.ErrorIs(t, err, ErrStalled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsStall(err))
	assert.Equal(t, StateStalled, w.State())
}

func TestWatchdogStallAfterBeats(t *testing.T) {
	clock := newMockClock()
	w := New(2*time.Second, 5*time.Second)
	w.clock = clock
	w.checked = clock.ack
	errCh, cancel := run(w)
	defer cancel()

	clock.tick()
	w.Beat()
	assert.Equal(t, StateRunning, w.State())

	clock.advance(4 * time.Second)
	w.Beat()
	clock.tick()
	assert.Equal(t, StateRunning, w.State())

	clock.advance(6 * time.Second)
	clock.tick()

	require.ErrorIs(t, <-errCh, ErrStalled)
	assert.Equal(t, StateStalled, w.State())
	assert.Equal(t, uint64(2), w.Beats())
}

func TestWatchdogStopsWithContext(t *testing.T) {
	clock := newMockClock()
	w := New(time.Second, time.Second)
	w.clock = clock
	w.checked = clock.ack
	errCh, cancel := run(w)

	clock.tick()
	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, w.State())
}

func TestTickIsBoundedByStallTimeout(t *testing.T) {
	assert.Equal(t, time.Second, New(time.Second, 10*time.Second).tick)
	assert.Equal(t, 100*time.Millisecond, New(time.Second, 400*time.Millisecond).tick)
}
