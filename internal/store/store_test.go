// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "content.duckdb"), Threads: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNodeLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	n := &Node{Type: "session", Title: "Swim Lessons", Status: true, Fields: map[string]any{"availability": 5}}
	id, err := s.UpsertNode(ctx, n)
	if err != nil {
		t.Fatalf("UpsertNode() error = %v", err)
	}
	if id == 0 || n.ID != id {
		t.Fatalf("got id %d (node %d), want non-zero and equal", id, n.ID)
	}

	if err := s.UpdateNodeFields(ctx, id, map[string]any{"waitlist_capacity": 3}); err != nil {
		t.Fatalf("UpdateNodeFields() error = %v", err)
	}
	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if got.Title != "Swim Lessons" || got.Fields["availability"] != float64(5) || got.Fields["waitlist_capacity"] != float64(3) {
		t.Errorf("got %+v, want merged fields", got)
	}

	if ok, _ := s.NodeExists(ctx, id); !ok {
		t.Error("NodeExists() = false, want true")
	}
	if err := s.DeleteNode(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetNode(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNode() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpsertNode(ctx, &Node{ID: id, Type: "session", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpsertNode() of a deleted id error = %v, want ErrNotFound", err)
	}
}

func TestFindNodeIDByTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	first, _ := s.UpsertNode(ctx, &Node{Type: "branch", Title: "Downtown"})
	_, _ = s.UpsertNode(ctx, &Node{Type: "camp", Title: "Downtown"})
	_, _ = s.UpsertNode(ctx, &Node{Type: "session", Title: "Lakeside"})

	tests := []struct {
		title  string
		types  []string
		wantID int64
		wantOK bool
	}{
		{"Downtown", []string{"branch", "camp"}, first, true},
		{"Lakeside", []string{"branch", "camp"}, 0, false},
		{"Nowhere", []string{"branch"}, 0, false},
		{"Downtown", nil, 0, false},
	}
	for _, tt := range tests {
		id, ok, err := s.FindNodeIDByTitle(ctx, tt.title, tt.types)
		if err != nil {
			t.Fatalf("FindNodeIDByTitle(%q) error = %v", tt.title, err)
		}
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("FindNodeIDByTitle(%q, %v) = %d, %v; want %d, %v", tt.title, tt.types, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestParagraphsAndOrphans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	keep, _ := s.UpsertNode(ctx, &Node{Type: "session", Title: "keep"})
	drop, _ := s.UpsertNode(ctx, &Node{Type: "session", Title: "drop"})

	if _, err := s.ReplaceParagraph(ctx, keep, "session_time", map[string]any{"days": []string{"monday"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReplaceParagraph(ctx, keep, "session_time", map[string]any{"days": []string{"friday"}}); err != nil {
		t.Fatal(err)
	}
	ps, err := s.Paragraphs(ctx, keep)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 {
		t.Fatalf("got %d paragraphs, want 1 after replace", len(ps))
	}

	for i := 0; i < 3; i++ {
		if _, err := s.ReplaceParagraph(ctx, drop, "session_time_"+string(rune('a'+i)), nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteNode(ctx, drop); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteOrphanParagraphs(ctx, 100, 2)
	if err != nil {
		t.Fatalf("DeleteOrphanParagraphs() error = %v", err)
	}
	if n != 3 {
		t.Errorf("got %d deleted, want 3", n)
	}
	if ps, _ := s.Paragraphs(ctx, keep); len(ps) != 1 {
		t.Errorf("live paragraph was collected")
	}
}

func TestMigrateMapAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, _ := s.LookupDest(ctx, "tr_sessions", "a0X1"); ok {
		t.Fatal("unexpected mapping before save")
	}
	if err := s.SaveMapping(ctx, "tr_sessions", MapEntry{SourceID: "a0X1", DestID: 10, Hash: "h1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMapping(ctx, "tr_sessions", MapEntry{SourceID: "a0X1", DestID: 10, Hash: "h2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMapping(ctx, "tr_sessions", MapEntry{SourceID: "a0X2", DestID: 11}); err != nil {
		t.Fatal(err)
	}

	e, ok, err := s.LookupDest(ctx, "tr_sessions", "a0X1")
	if err != nil || !ok || e.DestID != 10 || e.Hash != "h2" {
		t.Errorf("LookupDest() = %+v, %v, %v; want dest 10 hash h2", e, ok, err)
	}

	ids, err := s.DestIDs(ctx, "tr_sessions", []string{"a0X1", "a0X2", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids["a0X2"] != 11 {
		t.Errorf("DestIDs() = %v", ids)
	}

	if err := s.DeleteMapping(ctx, "tr_sessions", "a0X1"); err != nil {
		t.Fatal(err)
	}
	all, _ := s.MappedSources(ctx, "tr_sessions")
	if len(all) != 1 || all[0].SourceID != "a0X2" {
		t.Errorf("MappedSources() = %+v, want only a0X2", all)
	}

	status, err := s.Status(ctx, "tr_sessions", "idle")
	if err != nil || status != "idle" {
		t.Errorf("Status() default = %q, %v; want idle", status, err)
	}
	if err := s.SetStatus(ctx, "tr_sessions", "importing"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "tr_sessions", "stopping"); err != nil {
		t.Fatal(err)
	}
	if status, _ := s.Status(ctx, "tr_sessions", "idle"); status != "stopping" {
		t.Errorf("got status %q, want stopping", status)
	}
}

// Not parallel: it reads the package-wide query counters.
func TestQueryMetrics(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	upsertErrors := metrics.DBQueryErrors.WithLabelValues("upsert", "nodes")
	getErrors := metrics.DBQueryErrors.WithLabelValues("get", "nodes")
	before := testutil.ToFloat64(upsertErrors)
	beforeGet := testutil.ToFloat64(getErrors)

	if _, err := s.UpsertNode(ctx, &Node{Type: "session", Title: "Swim"}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(upsertErrors) - before; got != 0 {
		t.Errorf("got %v upsert errors after a good insert, want 0", got)
	}

	if _, err := s.UpsertNode(ctx, &Node{ID: 424242, Type: "session", Title: "Gone"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.GetNode(ctx, 424242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if got := testutil.ToFloat64(upsertErrors) - before; got != 1 {
		t.Errorf("got %v upsert errors, want 1", got)
	}
	if got := testutil.ToFloat64(getErrors) - beforeGet; got != 1 {
		t.Errorf("got %v get errors, want 1", got)
	}
	if n := testutil.CollectAndCount(metrics.DBQueryDuration, "duckdb_query_duration_seconds"); n == 0 {
		t.Error("no query durations recorded")
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}
