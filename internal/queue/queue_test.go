// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tractionsync/internal/config"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestQueue(t *testing.T, cfg config.QueueConfig) (*Queue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := New(openDB(t), cfg)
	q.now = clock.now
	return q, clock
}

func importMsg(dir string) Message {
	return Message{Type: TypeImport, Pipeline: "sessions", Directory: dir}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"import", importMsg("/data/json/202401010000"), false},
		{"legacy salesforce sync", Message{Type: TypeSalesforceSync, Pipeline: "memberships", Directory: "/d"}, false},
		{"cleanup without directory", Message{Type: TypeCleanup, Pipeline: "sessions"}, false},
		{"import without directory", Message{Type: TypeImport, Pipeline: "sessions"}, true},
		{"unknown type", Message{Type: "other", Pipeline: "sessions", Directory: "/d"}, true},
		{"unknown pipeline", Message{Type: TypeImport, Pipeline: "events", Directory: "/d"}, true},
		{"directory escaping its parent", importMsg("/data/json/../../etc"), true},
		{"filesystem root as directory", importMsg("/"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			var invalid *InvalidMessageError
			if err != nil && !errors.As(err, &invalid) {
				t.Errorf("got %T, want *InvalidMessageError", err)
			}
		})
	}
}

func TestMessageIsSync(t *testing.T) {
	t.Parallel()
	if importMsg("/d").IsSync() {
		t.Error("plain import reported as sync")
	}
	if !(Message{Type: TypeSync}).IsSync() {
		t.Error("sync type not reported as sync")
	}
	if !(Message{Type: TypeImport, Options: Options{Sync: true}}).IsSync() {
		t.Error("sync option not honoured")
	}
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t, config.QueueConfig{})
	ctx := context.Background()

	for _, dir := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(ctx, importMsg(dir)); err != nil {
			t.Fatal(err)
		}
		clock.t = clock.t.Add(time.Millisecond)
	}

	for _, want := range []string{"a", "b", "c"} {
		e, err := q.Claim(ctx, "w1")
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			t.Fatalf("got no entry, want %s", want)
		}
		if e.Message.Directory != want {
			t.Errorf("got %s, want %s", e.Message.Directory, want)
		}
		if err := q.Ack(ctx, e.ID); err != nil {
			t.Fatal(err)
		}
	}
	if e, _ := q.Claim(ctx, "w1"); e != nil {
		t.Errorf("got %s from an empty queue", e.ID)
	}
}

func TestQueueLeaseExpiry(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t, config.QueueConfig{LeaseDuration: time.Minute})
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, importMsg("a")); err != nil {
		t.Fatal(err)
	}

	if e, _ := q.Claim(ctx, "w1"); e == nil {
		t.Fatal("first claim got nothing")
	}
	if e, _ := q.Claim(ctx, "w2"); e != nil {
		t.Fatal("leased entry claimed twice")
	}
	clock.t = clock.t.Add(2 * time.Minute)
	e, err := q.Claim(ctx, "w2")
	if err != nil || e == nil {
		t.Fatalf("claim after lease expiry = %v, %v", e, err)
	}
	if e.LeaseHolder != "w2" {
		t.Errorf("got holder %s, want w2", e.LeaseHolder)
	}
}

func TestQueueNackBackoffAndDead(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t, config.QueueConfig{MaxAttempts: 2})
	ctx := context.Background()
	id, err := q.Enqueue(ctx, importMsg("a"))
	if err != nil {
		t.Fatal(err)
	}

	e, _ := q.Claim(ctx, "w1")
	dead, err := q.Nack(ctx, e.ID, errors.New("locked"))
	if err != nil || dead {
		t.Fatalf("first Nack = %v, %v; want alive", dead, err)
	}
	if e, _ := q.Claim(ctx, "w1"); e != nil {
		t.Fatal("entry claimable before its retry delay")
	}
	clock.t = clock.t.Add(time.Minute)
	e, _ = q.Claim(ctx, "w1")
	if e == nil {
		t.Fatal("entry not claimable after its retry delay")
	}
	if e.Attempts != 1 || e.LastError != "locked" {
		t.Errorf("got attempts=%d error=%q, want 1 and locked", e.Attempts, e.LastError)
	}

	dead, err = q.Nack(ctx, id, errors.New("locked"))
	if err != nil || !dead {
		t.Fatalf("second Nack = %v, %v; want dead", dead, err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 0 || stats.Dead != 1 {
		t.Errorf("got %+v, want 0 pending and 1 dead", stats)
	}
}

func TestQueueDeferKeepsAttempts(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t, config.QueueConfig{MaxAttempts: 1, DeferDelay: 5 * time.Minute})
	ctx := context.Background()
	id, err := q.Enqueue(ctx, importMsg("a"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		e, err := q.Claim(ctx, "w1")
		if err != nil || e == nil {
			t.Fatalf("claim %d = %v, %v; want an entry", i, e, err)
		}
		if err := q.Defer(ctx, id, errors.New("locked")); err != nil {
			t.Fatal(err)
		}
		if e, _ := q.Claim(ctx, "w1"); e != nil {
			t.Fatal("entry claimable before its defer delay")
		}
		clock.t = clock.t.Add(5 * time.Minute)
	}

	e, err := q.Claim(ctx, "w1")
	if err != nil || e == nil {
		t.Fatalf("final claim = %v, %v; want an entry", e, err)
	}
	if e.Attempts != 0 || e.Deferrals != 3 || e.LastError != "locked" {
		t.Errorf("got attempts=%d deferrals=%d error=%q, want 0, 3 and locked", e.Attempts, e.Deferrals, e.LastError)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Dead != 0 {
		t.Errorf("got %d dead, want 0", stats.Dead)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, maxRetryDelay},
		{80, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempts); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestQueueClosedAndUnknown(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue(t, config.QueueConfig{})
	ctx := context.Background()

	if err := q.Ack(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Ack(missing) = %v, want ErrEntryNotFound", err)
	}
	if err := q.Ack(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("Ack(\"\") = %v, want ErrEmptyEntryID", err)
	}
	if _, err := q.Enqueue(ctx, Message{Type: "nope"}); err == nil {
		t.Error("invalid message enqueued")
	}

	_ = q.Close()
	if _, err := q.Enqueue(ctx, importMsg("a")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
}
