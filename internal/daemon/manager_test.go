// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func testServerConfig(addr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      addr,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     10 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func waitForAddr(t *testing.T, mgr Manager) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := mgr.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("manager did not bind a listener")
	return ""
}

func TestNewManager_ValidDeps(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if mgr == nil {
		t.Fatal("NewManager() returned nil manager")
	}
}

func TestNewManager_MissingLogger(t *testing.T) {
	_, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:  zerolog.Nop(),
		Handler: okHandler(),
	})
	if !errors.Is(err, ErrMissingLogger) {
		t.Errorf("NewManager() error = %v, want %v", err, ErrMissingLogger)
	}
}

func TestNewManager_MissingHandler(t *testing.T) {
	_, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger: log.WithComponent("test"),
	})
	if !errors.Is(err, ErrMissingHandler) {
		t.Errorf("NewManager() error = %v, want %v", err, ErrMissingHandler)
	}
}

func TestManager_StartStop_OK(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- mgr.Start(ctx)
	}()

	addr := waitForAddr(t, mgr)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("GET = %d %q, want 200 OK", resp.StatusCode, body)
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManager_ListenerDisabled(t *testing.T) {
	mgr, err := NewManager(testServerConfig(""), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var ran bool
	mgr.RegisterShutdownHook("probe", func(context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if mgr.Addr() != "" {
		t.Errorf("Addr() = %q, want empty", mgr.Addr())
	}
	if !ran {
		t.Error("shutdown hook did not run")
	}
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	mgr, err := NewManager(testServerConfig(""), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	mgr.RegisterShutdownHook(hookTelemetry, record(hookTelemetry))
	mgr.RegisterShutdownHook(hookChildren, record(hookChildren))
	mgr.RegisterShutdownHook(hookPipeline, record(hookPipeline))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{hookPipeline, hookChildren, hookTelemetry}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}

func TestManager_ShutdownAggregatesHookErrors(t *testing.T) {
	mgr, err := NewManager(testServerConfig(""), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	errFirst := errors.New("first failed")
	errSecond := errors.New("second failed")
	var ranAfterFailure bool
	mgr.RegisterShutdownHook("last", func(context.Context) error {
		ranAfterFailure = true
		return errSecond
	})
	mgr.RegisterShutdownHook("first", func(context.Context) error { return errFirst })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = mgr.Start(ctx)
	if !errors.Is(err, errFirst) || !errors.Is(err, errSecond) {
		t.Errorf("Start() error = %v, want both hook errors", err)
	}
	if !ranAfterFailure {
		t.Error("hooks after a failing hook must still run")
	}

	// A second shutdown is a no-op.
	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:  log.WithComponent("test"),
		Handler: http.NotFoundHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	err = mgr.Shutdown(context.Background())
	if !errors.Is(err, ErrManagerNotStarted) {
		t.Errorf("Shutdown() error = %v, want %v", err, ErrManagerNotStarted)
	}
}

func TestManager_StartTwice(t *testing.T) {
	mgr, err := NewManager(testServerConfig(""), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := mgr.Start(ctx); !errors.Is(err, ErrManagerStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrManagerStarted)
	}
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	testServer := httptest.NewServer(http.NotFoundHandler())
	defer testServer.Close()

	mgr, err := NewManager(testServerConfig(testServer.Listener.Addr().String()), Deps{
		Logger:  log.WithComponent("test"),
		Handler: okHandler(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var ran bool
	mgr.RegisterShutdownHook("probe", func(context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := mgr.Start(ctx); err == nil {
		t.Error("Start() expected error for port conflict, got nil")
	}
	if !ran {
		t.Error("shutdown hooks must run when the listener cannot bind")
	}
}
