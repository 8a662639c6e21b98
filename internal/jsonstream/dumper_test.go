// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package jsonstream

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDumperRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	d, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := d.Push(map[string]any{"Id": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := d.PushMultiple([]any{map[string]any{"Id": "b"}, map[string]any{"Id": "c"}}); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	got, err := ReadFile[map[string]any](path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := []map[string]any{{"Id": "a"}, {"Id": "b"}, {"Id": "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if d.Count() != 3 {
		t.Errorf("Count() = %d, want 3", d.Count())
	}
}

func TestDumperEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	d, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("content = %q, want []", data)
	}
}

func TestDumperTruncatesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "classes.json")
	if err := os.WriteFile(path, []byte(`[{"stale":true},{"stale":true}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := PushAll(d, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile[string](path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("got %v, want [x]", got)
	}
}

func TestPushAfterClose(t *testing.T) {
	t.Parallel()

	d, err := Create(filepath.Join(t.TempDir(), "x.json"))
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Close()
	if err := d.Push(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close error = %v, want ErrClosed", err)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dir", "programs.json")
	if err := WriteFile(path, []map[string]string{{"Id": "p1"}}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile[map[string]string](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0]["Id"] != "p1" {
		t.Errorf("got %v", got)
	}
}
