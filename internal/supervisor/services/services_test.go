// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/thejerf/suture/v4"
)

type fakeHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return nil
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stop)
	}
	return nil
}

func TestHTTPServerService(t *testing.T) {
	t.Parallel()

	t.Run("graceful shutdown", func(t *testing.T) {
		t.Parallel()
		srv := newFakeHTTPServer(nil)
		svc := NewHTTPServerService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve() did not return after cancel")
		}
		if got := srv.shutdowns.Load(); got != 1 {
			t.Errorf("Shutdown calls = %d, want 1", got)
		}
	})

	t.Run("waits for background work", func(t *testing.T) {
		t.Parallel()
		svc := NewHTTPServerService(newFakeHTTPServer(nil), time.Second)
		var finished atomic.Bool
		release := make(chan struct{})
		svc.AwaitOnShutdown(func() {
			<-release
			finished.Store(true)
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		cancel()
		time.AfterFunc(50*time.Millisecond, func() { close(release) })

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Serve() did not return")
		}
		if !finished.Load() {
			t.Error("Serve() returned before background work finished")
		}
	})

	t.Run("background work bounded by timeout", func(t *testing.T) {
		t.Parallel()
		svc := NewHTTPServerService(newFakeHTTPServer(nil), 50*time.Millisecond)
		block := make(chan struct{})
		t.Cleanup(func() { close(block) })
		svc.AwaitOnShutdown(func() { <-block })

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Serve() waited past its shutdown timeout")
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		t.Parallel()
		bind := errors.New("address in use")
		svc := NewHTTPServerService(newFakeHTTPServer(bind), 0)
		if err := svc.Serve(context.Background()); !errors.Is(err, bind) {
			t.Errorf("Serve() error = %v, want %v", err, bind)
		}
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("shutdownTimeout = %v, want 10s default", svc.shutdownTimeout)
		}
	})

	if got := NewHTTPServerService(newFakeHTTPServer(nil), 0).String(); got != "admin-http-server" {
		t.Errorf("String() = %q, want admin-http-server", got)
	}
}

func TestRouterService(t *testing.T) {
	t.Parallel()

	t.Run("build failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("no subscriber")
		svc := NewRouterService("events-router", func() (*message.Router, error) { return nil, boom })
		if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Serve() error = %v, want %v", err, boom)
		}
	})

	t.Run("runs until canceled and rebuilds", func(t *testing.T) {
		t.Parallel()
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		t.Cleanup(func() { _ = pubSub.Close() })

		var builds atomic.Int32
		svc := NewRouterService("events-router", func() (*message.Router, error) {
			builds.Add(1)
			r, err := message.NewRouter(message.RouterConfig{CloseTimeout: time.Second}, watermill.NopLogger{})
			if err != nil {
				return nil, err
			}
			r.AddConsumerHandler("noop", "topic", pubSub, func(*message.Message) error { return nil })
			return r, nil
		})

		for i := 0; i < 2; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			err := svc.Serve(ctx)
			cancel()
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Serve() #%d error = %v, want deadline exceeded", i, err)
			}
		}
		if got := builds.Load(); got != 2 {
			t.Errorf("builds = %d, want 2", got)
		}
	})
}

type fakeNATSServer struct {
	running  atomic.Bool
	shutdown atomic.Int32
}

func (f *fakeNATSServer) IsRunning() bool { return f.running.Load() }

func (f *fakeNATSServer) Shutdown(context.Context) error {
	f.shutdown.Add(1)
	f.running.Store(false)
	return nil
}

func TestEmbeddedNATSService(t *testing.T) {
	t.Parallel()

	t.Run("shuts down on cancel", func(t *testing.T) {
		t.Parallel()
		srv := &fakeNATSServer{}
		srv.running.Store(true)
		svc := NewEmbeddedNATSService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
		if srv.shutdown.Load() != 1 {
			t.Errorf("Shutdown calls = %d, want 1", srv.shutdown.Load())
		}
	})

	t.Run("stops for good when the server dies", func(t *testing.T) {
		t.Parallel()
		svc := NewEmbeddedNATSService(&fakeNATSServer{}, time.Second)
		svc.pollInterval = 10 * time.Millisecond
		if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() error = %v, want ErrDoNotRestart", err)
		}
	})
}
