// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package lock

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	holder string
	expiry time.Time
}

// Memory is a process-local Locker.
type Memory struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

// NewMemory creates an in-memory Locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]memoryLock), now: time.Now}
}

// live returns the unexpired lock for name. m.mu must be held.
func (m *Memory) live(name string) (memoryLock, bool) {
	l, ok := m.locks[name]
	return l, ok && m.now().Before(l.expiry)
}

// Acquire implements Locker.
func (m *Memory) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(name); ok {
		record(name, false, nil)
		return false, nil
	}
	m.locks[name] = memoryLock{holder: newToken(), expiry: m.now().Add(ttl)}
	record(name, true, nil)
	return true, nil
}

// Release implements Locker.
func (m *Memory) Release(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.locks, name)
	m.mu.Unlock()
	return nil
}

// ForceRelease implements Locker.
func (m *Memory) ForceRelease(ctx context.Context, name string) error {
	return m.Release(ctx, name)
}

// Inspect implements Locker.
func (m *Memory) Inspect(_ context.Context, name string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.live(name)
	if !ok {
		return Info{}, nil
	}
	return Info{Held: true, Holder: l.holder, ExpiresAt: l.expiry.UTC()}, nil
}

// Held reports whether name is currently locked.
func (m *Memory) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(name)
	return ok
}
