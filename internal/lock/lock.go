// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Backends understood by New.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Locker is a named, expiring mutual exclusion lock. Acquire reports false
// when another holder owns the lock; the error is reserved for backend
// failures. Release only drops a lock this Locker acquired; ForceRelease
// drops it regardless of holder and is meant for operator recovery.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
	ForceRelease(ctx context.Context, name string) error
	Inspect(ctx context.Context, name string) (Info, error)
}

// Info is a lock as an operator sees it. Holder is the token of the
// owning process: host-pid/uuid.
type Info struct {
	Held      bool      `json:"held"`
	Holder    string    `json:"holder,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

var processID = func() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}()

// newToken identifies one acquisition.
func newToken() string {
	return processID + "/" + uuid.New().String()
}

// New builds the Locker selected by cfg.Backend. db is only needed for the
// badger backend.
func New(cfg config.LockConfig, db *badger.DB) (Locker, error) {
	switch cfg.Backend {
	case "", BackendBadger:
		if db == nil {
			return nil, fmt.Errorf("badger lock backend needs the state database")
		}
		return NewBadger(db), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		return NewRedis(client), nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// tokens remembers the holder token of each lock this process acquired.
type tokens struct {
	mu sync.Mutex
	m  map[string]string
}

func (t *tokens) set(name, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[string]string)
	}
	t.m[name] = token
}

func (t *tokens) get(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.m[name]
	return tok, ok
}

func (t *tokens) drop(name string) {
	t.mu.Lock()
	delete(t.m, name)
	t.mu.Unlock()
}

func record(name string, acquired bool, err error) {
	metrics.RecordLockAttempt(name, acquired, err)
}
