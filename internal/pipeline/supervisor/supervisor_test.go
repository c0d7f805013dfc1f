// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec/fake"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type requests chan model.TransitionRequest

func (r requests) Request(req model.TransitionRequest) { r <- req }

func (r requests) next(t *testing.T) model.TransitionRequest {
	t.Helper()
	select {
	case req := <-r:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no transition request")
		return model.TransitionRequest{}
	}
}

func (r requests) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case req := <-r:
		t.Fatalf("unexpected request %s", req)
	case <-time.After(wait):
	}
}

type fixture struct {
	sup    *Supervisor
	reqs   requests
	engine *fake.Engine
	faults bus.Subscriber
}

func newFixture(t *testing.T, stall time.Duration) *fixture {
	t.Helper()
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), bus.TopicFault)
	require.NoError(t, err)
	reqs := make(requests, 16)
	sup := New(Options{Policy: testPolicy(), Requester: reqs, Bus: b, StallTimeout: stall})
	t.Cleanup(func() {
		sup.Close()
		_ = sub.Close()
	})
	return &fixture{sup: sup, reqs: reqs, engine: fake.New(), faults: sub}
}

func (f *fixture) start(t *testing.T, st model.StreamState, gen uint64) *fake.Handle {
	t.Helper()
	h, err := f.engine.Start(context.Background(), spec.Spec{State: st, Publishes: st.Kind == model.StateLive})
	require.NoError(t, err)
	f.sup.HandleStarted(h, gen, st)
	return h.(*fake.Handle)
}

func (f *fixture) fault(t *testing.T) model.FaultEvent {
	t.Helper()
	select {
	case msg := <-f.faults.C():
		ev, ok := msg.(model.FaultEvent)
		require.True(t, ok)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no fault event")
		return model.FaultEvent{}
	}
}

func TestStaticEndOfStreamRestartsSameState(t *testing.T) {
	f := newFixture(t, 0)
	h := f.start(t, absent, 1)

	h.EndOfStream()

	req := f.reqs.next(t)
	assert.Equal(t, model.RequestRetrySame, req.Kind)
	assert.Equal(t, uint64(1), req.Generation)
	ev := f.fault(t)
	assert.Equal(t, model.ActionRestart, ev.Action)
	assert.Equal(t, model.FaultEndOfStream, ev.Class)
}

func TestLiveEndOfStreamFallsBack(t *testing.T) {
	f := newFixture(t, 0)
	h := f.start(t, live, 3)

	h.EndOfStream()

	req := f.reqs.next(t)
	assert.Equal(t, model.RequestFallbackSafe, req.Kind)
	assert.Equal(t, model.FaultEndOfStream, req.Class)
	assert.Equal(t, live, req.Target)
	assert.Equal(t, uint64(3), req.Generation)
}

func TestFatalRetriesThenFallsBack(t *testing.T) {
	f := newFixture(t, 0)

	for gen := uint64(1); gen <= 2; gen++ {
		h := f.start(t, live, gen)
		h.Fail(model.FaultAuth, "401 Unauthorized")
		req := f.reqs.next(t)
		assert.Equal(t, model.RequestRetrySame, req.Kind)
		assert.Equal(t, gen, req.Generation)
		ev := f.fault(t)
		assert.Equal(t, model.ActionRetry, ev.Action)
		assert.Equal(t, int(gen), ev.Attempt)
	}

	h := f.start(t, live, 3)
	h.Fail(model.FaultAuth, "401 Unauthorized")
	req := f.reqs.next(t)
	assert.Equal(t, model.RequestFallbackSafe, req.Kind)
	assert.Equal(t, model.FaultAuth, req.Class)
	assert.Equal(t, disabled, testPolicy().FallbackFor(req.Target, req.Class))
	assert.Equal(t, model.ActionFallback, f.fault(t).Action)
}

func TestBudgetResetsOnStateChange(t *testing.T) {
	f := newFixture(t, 0)

	f.start(t, live, 1).Fail(model.FaultNetwork, "connection refused")
	f.reqs.next(t)
	f.start(t, live, 2).Fail(model.FaultNetwork, "connection refused")
	f.reqs.next(t)

	f.start(t, connecting, 3)
	h := f.start(t, live, 4)
	h.Fail(model.FaultNetwork, "connection refused")

	assert.Equal(t, model.RequestRetrySame, f.reqs.next(t).Kind)
}

func TestReplacedHandleIsIgnored(t *testing.T) {
	f := newFixture(t, 0)
	old := f.start(t, live, 1)
	f.start(t, connecting, 2)

	old.Fail(model.FaultNetwork, "connection reset")

	f.reqs.none(t, 100*time.Millisecond)
}

func TestStoppedHandleIsNotAFault(t *testing.T) {
	f := newFixture(t, 0)
	h := f.start(t, live, 1)

	require.NoError(t, h.Stop(context.Background()))

	f.reqs.none(t, 100*time.Millisecond)
}

func TestStallTriggersRetry(t *testing.T) {
	f := newFixture(t, 60*time.Millisecond)
	h := f.start(t, live, 1)
	h.Heartbeat()

	req := f.reqs.next(t)
	assert.Equal(t, model.RequestRetrySame, req.Kind)
	ev := f.fault(t)
	assert.Equal(t, model.FaultStall, ev.Class)
	require.NoError(t, h.Stop(context.Background()))
}

func TestBuildFailureFallsBackImmediately(t *testing.T) {
	f := newFixture(t, 0)

	f.sup.StartFailed(switcher.StartFailure{
		Request:    model.ToState(live, model.OriginControl),
		Target:     live,
		Generation: 4,
		Err:        model.NewBuildError(live, `no element "rtspsrc"`),
	})

	req := f.reqs.next(t)
	assert.Equal(t, model.RequestFallbackSafe, req.Kind)
	assert.Equal(t, model.FaultBuild, req.Class)
	assert.Equal(t, uint64(4), req.Generation)
}

func TestStartFailureRetriesRequestedTarget(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t, connecting, 2)

	f.sup.StartFailed(switcher.StartFailure{
		Request:    model.ToState(live, model.OriginControl),
		Target:     live,
		Generation: 2,
		Err:        model.NewStartError(live, "connection refused"),
	})

	req := f.reqs.next(t)
	assert.Equal(t, model.RequestToState, req.Kind)
	assert.Equal(t, live, req.Target)
	assert.Equal(t, uint64(2), req.Generation)
	assert.Equal(t, model.OriginSupervisor, req.Origin)
}

func TestConnectingNeverGivesUp(t *testing.T) {
	f := newFixture(t, 0)
	fail := switcher.StartFailure{
		Request: model.ToState(connecting, model.OriginStartup),
		Target:  connecting,
		Err:     model.NewStartError(connecting, "could not connect to port 9000"),
	}

	for i := 0; i < 4; i++ {
		f.sup.StartFailed(fail)
		req := f.reqs.next(t)
		assert.Equal(t, model.RequestToState, req.Kind, "attempt %d", i+1)
		assert.Equal(t, connecting, req.Target)
	}
}

func TestLiveFaultsBeyondBudgetEndInConnecting(t *testing.T) {
	engine := fake.New()
	policy := testPolicy()
	sw := switcher.New(switcher.Options{
		Engine: engine,
		Build: func(st model.StreamState) spec.Spec {
			return spec.Spec{State: st, Publishes: st.Kind == model.StateLive}
		},
		Fallback:    policy.FallbackFor,
		StopTimeout: time.Second,
	})
	sup := New(Options{Policy: policy, Requester: sw})
	sw.SetObserver(sup)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		sup.Close()
	}()

	sw.Request(model.ToState(live, model.OriginControl))
	for i := 0; i <= policy.MaxRetries; i++ {
		select {
		case h := <-engine.StartedC():
			require.Equal(t, model.StateLive, h.Spec().State.Kind)
			h.Fail(model.FaultNetwork, "connection reset by peer")
		case <-time.After(2 * time.Second):
			t.Fatalf("live pipeline %d not started", i+1)
		}
	}

	require.Eventually(t, func() bool {
		snap := sw.Snapshot()
		return snap.State.Equal(connecting) && snap.Running
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(policy.MaxRetries+2), sw.Snapshot().Generation)
	assert.Equal(t, 1, engine.MaxPublishing())
}
