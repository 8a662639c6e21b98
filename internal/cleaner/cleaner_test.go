// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package cleaner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/tomtom215/tractionsync/internal/config"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/store"
)

// makeBackups creates k directories whose mtimes increase with their index.
func makeBackups(t *testing.T, dir string, k int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < k; i++ {
		p := filepath.Join(dir, fmt.Sprintf("b%02d", i))
		if err := os.MkdirAll(p, 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(p, "sessions.json"), []byte("[]"), 0o600); err != nil {
			t.Fatal(err)
		}
		mt := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
	}
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func TestCleanBackupFilesKeepsNewest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		k, limit    int
		wantRemoved int
		wantKept    []string
	}{
		{k: 5, limit: 2, wantRemoved: 3, wantKept: []string{"b03", "b04"}},
		{k: 3, limit: 5, wantRemoved: 0, wantKept: []string{"b00", "b01", "b02"}},
		{k: 4, limit: 0, wantRemoved: 4, wantKept: nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d limit=%d", tt.k, tt.limit), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			makeBackups(t, dir, tt.k)
			c := New(Config{Pipeline: "sessions", BackupJSON: true, BackupLimit: tt.limit, BackupDir: dir}, tractionimport.ExecCLI, nil)

			removed, err := c.CleanBackupFiles(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if removed != tt.wantRemoved {
				t.Errorf("got %d removed, want %d", removed, tt.wantRemoved)
			}
			if got := names(t, dir); fmt.Sprint(got) != fmt.Sprint(tt.wantKept) {
				t.Errorf("got kept %v, want %v", got, tt.wantKept)
			}
		})
	}
}

func TestCleanBackupFilesGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("backups off", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		makeBackups(t, dir, 3)
		c := New(Config{BackupLimit: 1, BackupDir: dir}, tractionimport.ExecCLI, nil)
		if n, _ := c.CleanBackupFiles(ctx); n != 0 || len(names(t, dir)) != 3 {
			t.Errorf("removed %d with backups off", n)
		}
	})

	t.Run("http context", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		makeBackups(t, dir, 3)
		c := New(Config{BackupJSON: true, BackupLimit: 1, BackupDir: dir}, tractionimport.ExecHTTP, nil)
		if n, _ := c.CleanBackupFiles(ctx); n != 0 || len(names(t, dir)) != 3 {
			t.Errorf("removed %d from the HTTP context", n)
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		t.Parallel()
		c := New(Config{BackupJSON: true, BackupLimit: 1, BackupDir: filepath.Join(t.TempDir(), "nope")}, tractionimport.ExecWorker, nil)
		if n, err := c.CleanBackupFiles(ctx); n != 0 || err != nil {
			t.Errorf("CleanBackupFiles = %d, %v; want 0, nil", n, err)
		}
	})
}

func TestCleanDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "content.duckdb"), Threads: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	live, err := st.UpsertNode(ctx, &store.Node{Type: "session", Title: "Swim"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.ReplaceParagraph(ctx, live, "session_time", map[string]any{"days": []string{"monday"}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		gone, err := st.UpsertNode(ctx, &store.Node{Type: "session", Title: fmt.Sprintf("Gone %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := st.ReplaceParagraph(ctx, gone, "session_time", map[string]any{}); err != nil {
			t.Fatal(err)
		}
		if err := st.DeleteNode(ctx, gone); err != nil {
			t.Fatal(err)
		}
	}

	c := New(Config{Pipeline: "sessions"}, tractionimport.ExecCLI, st)
	n, err := c.CleanDatabase(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("got %d deleted, want 3", n)
	}
	left, err := st.Paragraphs(ctx, live)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("got %d paragraphs on the live session, want 1", len(left))
	}
}
