// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package locations

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/tractionsync/internal/cache"
)

func TestParse(t *testing.T) {
	t.Parallel()

	m := Parse("a1:12:Downtown\nbroken\n\n a2 : 15 \r\na3:\na1:14:Downtown moved\nx:y:z:extra")

	if got, want := m.MappedIDs(), []string{"a1", "a2", "a3", "x"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MappedIDs() = %v, want %v", got, want)
	}

	e, ok := m.Lookup("a1")
	if !ok || e.LocalID != "14" || e.Comment != "Downtown moved" {
		t.Errorf("Lookup(a1) = %+v, %v; want last write to win", e, ok)
	}
	e, _ = m.Lookup("a2")
	if e.Comment != "a2 => 15" {
		t.Errorf("default comment = %q", e.Comment)
	}
	e, _ = m.Lookup("x")
	if e.Comment != "z:extra" {
		t.Errorf("comment = %q, want the remainder of the line", e.Comment)
	}
	if _, ok := m.Lookup("broken"); ok {
		t.Error("malformed line should be skipped")
	}
	e, ok = m.Lookup("a3")
	if !ok || e.LocalID != "" || e.Pinned() {
		t.Errorf("Lookup(a3) = %+v, %v; want an unpinned entry", e, ok)
	}
	if m.Len() != 4 || len(m.Entries()) != 4 {
		t.Errorf("Len() = %d", m.Len())
	}
}

func TestNilMapping(t *testing.T) {
	t.Parallel()

	var m *Mapping
	if m.MappedIDs() != nil || m.Len() != 0 || m.Entries() != nil {
		t.Error("nil mapping should be empty")
	}
	if _, ok := m.Lookup("a"); ok {
		t.Error("nil mapping should not find anything")
	}
}

type fakeNodes struct {
	existing     map[int64]bool
	titles       map[string]int64
	titleQueries int
}

func (f *fakeNodes) NodeExists(_ context.Context, id int64) (bool, error) {
	return f.existing[id], nil
}

func (f *fakeNodes) FindNodeIDByTitle(_ context.Context, title string, types []string) (int64, bool, error) {
	f.titleQueries++
	if !reflect.DeepEqual(types, LocationTypes) {
		return 0, false, errors.New("unexpected types")
	}
	id, ok := f.titles[title]
	return id, ok, nil
}

func TestResolveUsesMappingWithoutTitleSearch(t *testing.T) {
	t.Parallel()

	nodes := &fakeNodes{existing: map[int64]bool{12: true}, titles: map[string]int64{"Downtown": 99}}
	r := &Resolver{Mapping: Parse("a1:12:Downtown"), Nodes: nodes}

	id, err := r.Resolve(context.Background(), "a1", "Downtown")
	if err != nil || id != 12 {
		t.Fatalf("Resolve() = %d, %v; want 12", id, err)
	}
	if nodes.titleQueries != 0 {
		t.Errorf("title queries = %d, want 0", nodes.titleQueries)
	}
}

func TestResolveFallsBackToTitleOnce(t *testing.T) {
	t.Parallel()

	nodes := &fakeNodes{titles: map[string]int64{"Lakeside": 7}}
	r := &Resolver{Mapping: Parse(""), Nodes: nodes}

	id, err := r.Resolve(context.Background(), "a9", "Lakeside")
	if err != nil || id != 7 {
		t.Fatalf("Resolve() = %d, %v; want 7", id, err)
	}
	if nodes.titleQueries != 1 {
		t.Errorf("title queries = %d, want 1", nodes.titleQueries)
	}

	_, err = r.Resolve(context.Background(), "a9", "Nowhere")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want ErrNodeNotFound", err)
	}
}

func TestMappedNodeStale(t *testing.T) {
	t.Parallel()

	nodes := &fakeNodes{}
	r := &Resolver{Mapping: Parse("a1:12:Old Branch"), Nodes: nodes}

	_, mapped, err := r.MappedNode(context.Background(), "a1")
	if !mapped || !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("MappedNode() = %v, %v; want mapped with ErrNodeNotFound", mapped, err)
	}
	if !strings.Contains(err.Error(), "Old Branch") {
		t.Errorf("error %q should carry the mapping comment", err)
	}

	if _, err := r.Resolve(context.Background(), "a1", "Old Branch"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Resolve() error = %v", err)
	}
	if nodes.titleQueries != 0 {
		t.Error("stale mapping must not fall back to title search")
	}

	_, mapped, err = r.MappedNode(context.Background(), "zz")
	if mapped || err != nil {
		t.Errorf("MappedNode(unmapped) = %v, %v", mapped, err)
	}
}

func TestResolveCachesTitleHits(t *testing.T) {
	t.Parallel()

	nodes := &fakeNodes{titles: map[string]int64{"Lakeside": 7}}
	r := &Resolver{Mapping: Parse(""), Nodes: nodes, Titles: cache.NewLRU[string, int64](8, time.Minute)}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if id, err := r.Resolve(ctx, "a9", "Lakeside"); err != nil || id != 7 {
			t.Fatalf("Resolve() = %d, %v; want 7", id, err)
		}
	}
	if nodes.titleQueries != 1 {
		t.Errorf("title queries = %d, want 1", nodes.titleQueries)
	}

	for i := 0; i < 2; i++ {
		_, _ = r.Resolve(ctx, "a9", "Nowhere")
	}
	if nodes.titleQueries != 3 {
		t.Errorf("title queries = %d, want misses never cached", nodes.titleQueries)
	}
}

func TestResolveUnpinnedEntryUsesTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mapping string
	}{
		{"empty local id", "a1:"},
		{"empty local id with comment", "a1::Lakeside"},
		{"zero local id", "a1:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			nodes := &fakeNodes{titles: map[string]int64{"Lakeside": 7}}
			r := &Resolver{Mapping: Parse(tt.mapping), Nodes: nodes}

			_, mapped, err := r.MappedNode(context.Background(), "a1")
			if mapped || err != nil {
				t.Errorf("got MappedNode() = %v, %v; want not mapped", mapped, err)
			}
			id, err := r.Resolve(context.Background(), "a1", "Lakeside")
			if err != nil || id != 7 {
				t.Errorf("got Resolve() = %d, %v; want 7", id, err)
			}
			if got := r.Mapping.MappedIDs(); !reflect.DeepEqual(got, []string{"a1"}) {
				t.Errorf("got MappedIDs() %v, want [a1]", got)
			}
		})
	}
}

func TestResetForgetsTitles(t *testing.T) {
	t.Parallel()

	nodes := &fakeNodes{titles: map[string]int64{"Lakeside": 7}}
	r := &Resolver{Mapping: Parse(""), Nodes: nodes, Titles: cache.NewLRU[string, int64](8, time.Minute)}
	ctx := context.Background()

	if id, err := r.Resolve(ctx, "a9", "Lakeside"); err != nil || id != 7 {
		t.Fatalf("Resolve() = %d, %v; want 7", id, err)
	}
	delete(nodes.titles, "Lakeside")
	if id, _ := r.Resolve(ctx, "a9", "Lakeside"); id != 7 {
		t.Fatalf("got %d before Reset, want the cached 7", id)
	}

	r.Reset()
	if _, err := r.Resolve(ctx, "a9", "Lakeside"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("got error %v after Reset, want ErrNodeNotFound", err)
	}
	if nodes.titleQueries != 2 {
		t.Errorf("got %d title queries, want 2", nodes.titleQueries)
	}

	var bare Resolver
	bare.Reset()
}
