// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/queue"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	got  chan struct{}
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{got: make(chan struct{}, 16)}
}

func (q *recordingQueue) Enqueue(_ context.Context, msg queue.Message) (string, error) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	select {
	case q.got <- struct{}{}:
	default:
	}
	return "entry-1", nil
}

func (q *recordingQueue) first() queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs[0]
}

func fastRouter() RouterConfig {
	cfg := DefaultRouterConfig()
	cfg.CloseTimeout = 5 * time.Second
	cfg.RetryInitialInterval = 10 * time.Millisecond
	cfg.RetryMaxInterval = 50 * time.Millisecond
	return cfg
}

func startRouter(t *testing.T, bus *Bus, q Enqueuer) {
	t.Helper()
	r, err := bus.Router(fastRouter(), bus.FetchCompletedHandler("enqueue-import", EnqueueOnFetchCompleted(q)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = r.Close()
	})
	select {
	case <-r.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
}

func TestFetchCompletedValidate(t *testing.T) {
	t.Parallel()
	ev := NewFetchCompleted("sessions", "/data/json/202401010000", nil)
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	data, err := ev.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalFetchCompleted(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Directory != ev.Directory || got.EventID != ev.EventID {
		t.Errorf("got %+v, want %+v", got, ev)
	}

	if _, err := UnmarshalFetchCompleted([]byte(`{"pipeline":"sessions"}`)); err == nil {
		t.Error("event without id and directory accepted")
	}
	if err := NewFetchCompleted("camps", "/d", nil).Validate(); err == nil {
		t.Error("event for an unknown pipeline accepted")
	}
	if err := NewFetchCompleted("sessions", "/srv/json/../../etc", nil).Validate(); err == nil {
		t.Error("event with a parent element in its directory accepted")
	}
}

func TestTopic(t *testing.T) {
	t.Parallel()
	tests := []struct{ prefix, want string }{
		{"", "fetch.completed"},
		{"tractionsync", "tractionsync.fetch.completed"},
		{"tractionsync.", "tractionsync.fetch.completed"},
	}
	for _, tt := range tests {
		b := &Bus{prefix: tt.prefix}
		if got := b.Topic(FetchCompletedTopic); got != tt.want {
			t.Errorf("Topic with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestChannelBusEnqueuesImport(t *testing.T) {
	t.Parallel()
	bus := NewChannelBus("test", nil)
	t.Cleanup(func() { bus.Close() })
	q := newRecordingQueue()
	startRouter(t, bus, q)

	ev := NewFetchCompleted("sessions", "/data/json/202401010000", map[string]StepResult{
		"sessions":  {TotalSize: 2, Done: true},
		"locations": {Error: "boom"},
	})
	if err := bus.PublishFetchCompleted(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	// The channel transport acks before Publish returns.
	select {
	case <-q.got:
	default:
		t.Fatal("publish returned before the import was enqueued")
	}
	msg := q.first()
	if msg.Type != queue.TypeImport || msg.Directory != ev.Directory || msg.Pipeline != "sessions" {
		t.Errorf("got %+v, want an import of %s", msg, ev.Directory)
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	t.Parallel()
	bus := NewChannelBus("test", nil)
	t.Cleanup(func() { bus.Close() })
	if err := bus.PublishFetchCompleted(context.Background(), &FetchCompleted{}); err == nil {
		t.Error("invalid event published")
	}
	_ = bus.Close()
	if err := bus.PublishFetchCompleted(context.Background(), NewFetchCompleted("sessions", "/d", nil)); err == nil {
		t.Error("publish on a closed bus succeeded")
	}
}

func TestNewBusUnknownTransport(t *testing.T) {
	t.Parallel()
	if _, err := NewBus(config.EventsConfig{Transport: "kafka"}, nil); err == nil {
		t.Error("unknown transport accepted")
	}
}

func TestNATSBusEnqueuesImport(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	t.Parallel()

	srv, err := StartEmbeddedServer("127.0.0.1", -1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	if !srv.IsRunning() {
		t.Fatal("embedded server not running")
	}

	bus, err := NewBus(config.EventsConfig{Transport: TransportNATS, NATSURL: srv.ClientURL(), TopicPrefix: "test"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bus.Close() })
	q := newRecordingQueue()
	startRouter(t, bus, q)

	ev := NewFetchCompleted("memberships", "/data/json/202401010000", nil)
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	// Core NATS drops messages published before the subscription reaches
	// the server, so keep publishing until one arrives.
	for {
		if err := bus.PublishFetchCompleted(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
		select {
		case <-q.got:
			if got := q.first().Pipeline; got != "memberships" {
				t.Errorf("got pipeline %q, want memberships", got)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no import enqueued over NATS")
		}
	}
}
