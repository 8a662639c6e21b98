// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package state

import (
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tractionsync/internal/config"
)

func TestOpenPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := Open(config.StateConfig{Path: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err = Open(config.StateConfig{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if string(val) != "v" {
				t.Errorf("value = %q, want v", val)
			}
			return nil
		})
	})
	if err != nil {
		t.Errorf("reopen read error = %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(config.StateConfig{}); err == nil {
		t.Error("Open() without a path should fail")
	}
}
