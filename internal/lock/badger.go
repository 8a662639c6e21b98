// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const prefixLock = "lock:"

// Badger stores locks as TTL entries in the shared state database. Badger
// allows one process per directory, so this backend only excludes runs
// within a single process; use Redis across hosts.
type Badger struct {
	db   *badger.DB
	held tokens
}

// NewBadger creates a badger-backed Locker.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// Acquire implements Locker. A concurrent transaction that wins the same
// key makes this call report false.
func (b *Badger) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	key := []byte(prefixLock + name)
	token := newToken()

	var acquired bool
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get lock: %w", err)
		}
		if err := txn.SetEntry(badger.NewEntry(key, []byte(token)).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set lock: %w", err)
		}
		acquired = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		record(name, false, nil)
		return false, nil
	}
	if err != nil {
		record(name, false, err)
		return false, err
	}
	if acquired {
		b.held.set(name, token)
	}
	record(name, acquired, nil)
	return acquired, nil
}

// Release implements Locker.
func (b *Badger) Release(_ context.Context, name string) error {
	token, ok := b.held.get(name)
	if !ok {
		return nil
	}
	key := []byte(prefixLock + name)
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var current string
		if err := item.Value(func(val []byte) error {
			current = string(val)
			return nil
		}); err != nil {
			return err
		}
		if current != token {
			return nil
		}
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	b.held.drop(name)
	return nil
}

// ForceRelease implements Locker.
func (b *Badger) ForceRelease(_ context.Context, name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixLock + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("reset lock %s: %w", name, err)
	}
	b.held.drop(name)
	return nil
}

// Inspect implements Locker.
func (b *Badger) Inspect(_ context.Context, name string) (Info, error) {
	var info Info
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixLock + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		info.Held = true
		if exp := item.ExpiresAt(); exp > 0 {
			info.ExpiresAt = time.Unix(int64(exp), 0).UTC()
		}
		return item.Value(func(val []byte) error {
			info.Holder = string(val)
			return nil
		})
	})
	if err != nil {
		return Info{}, fmt.Errorf("inspect lock %s: %w", name, err)
	}
	return info, nil
}
