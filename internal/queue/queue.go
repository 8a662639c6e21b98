// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

const (
	prefixEntry = "queue:entry:"
	prefixDead  = "queue:dead:"

	claimConflictRetries = 5
	maxRetryDelay        = 10 * time.Minute
)

var (
	ErrQueueClosed   = errors.New("queue is closed")
	ErrEntryNotFound = errors.New("queue entry not found")
	ErrEmptyEntryID  = errors.New("entry ID cannot be empty")
)

// Entry is a stored message with its delivery state.
type Entry struct {
	ID            string    `json:"id"`
	Message       Message   `json:"message"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempts      int       `json:"attempts"`
	Deferrals     int       `json:"deferrals,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	AvailableAt   time.Time `json:"available_at,omitempty"`
	LeaseHolder   string    `json:"lease_holder,omitempty"`
	LeaseExpiry   time.Time `json:"lease_expiry,omitempty"`
}

func (e *Entry) leased(now time.Time) bool {
	return !e.LeaseExpiry.IsZero() && now.Before(e.LeaseExpiry)
}

func (e *Entry) claimable(now time.Time) bool {
	return !e.leased(now) && !now.Before(e.AvailableAt)
}

// Stats counts entries by state.
type Stats struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// Queue is a durable at-least-once FIFO over BadgerDB. A claimed entry is
// leased to its holder; if the holder dies the lease expires and the entry
// is delivered again.
type Queue struct {
	db  *badger.DB
	cfg config.QueueConfig
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// New creates a queue over db. The database is owned by the caller.
func New(db *badger.DB, cfg config.QueueConfig) *Queue {
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = 5 * time.Minute
	}
	return &Queue{db: db, cfg: cfg, now: time.Now}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Close stops accepting work. The database is left open.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

// Enqueue validates and stores msg. Entry ids sort in enqueue order.
func (q *Queue) Enqueue(ctx context.Context, msg Message) (string, error) {
	if q.isClosed() {
		return "", ErrQueueClosed
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := q.now().UTC()
	entry := &Entry{
		ID:         fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.New().String()),
		Message:    msg,
		EnqueuedAt: now,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEntry+entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	metrics.QueueEnqueued.WithLabelValues(msg.Type).Inc()
	logging.Debug().Str("entry_id", entry.ID).Str("type", msg.Type).Str("directory", msg.Directory).Msg("Queue: message enqueued")
	return entry.ID, nil
}

// Claim leases the oldest claimable entry to holder. It returns nil when
// nothing is claimable.
func (q *Queue) Claim(ctx context.Context, holder string) (*Entry, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}

	for attempt := 0; attempt < claimConflictRetries; attempt++ {
		entry, err := q.claimOnce(ctx, holder)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return entry, err
	}
	return nil, nil
}

func (q *Queue) claimOnce(ctx context.Context, holder string) (*Entry, error) {
	var claimed *Entry
	now := q.now()

	err := q.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Queue: failed to unmarshal entry")
				continue
			}
			if !entry.claimable(now) {
				continue
			}

			entry.LeaseHolder = holder
			entry.LeaseExpiry = now.Add(q.cfg.LeaseDuration)
			entry.LastAttemptAt = now.UTC()
			data, err := json.Marshal(&entry)
			if err != nil {
				return fmt.Errorf("marshal entry: %w", err)
			}
			if err := txn.Set(item.KeyCopy(nil), data); err != nil {
				return fmt.Errorf("set entry: %w", err)
			}
			claimed = &entry
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Ack removes a processed entry.
func (q *Queue) Ack(_ context.Context, id string) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if id == "" {
		return ErrEmptyEntryID
	}
	key := []byte(prefixEntry + id)
	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("get entry: %w", err)
		}
		return txn.Delete(key)
	})
}

// Nack records a failed attempt. The entry becomes claimable again after an
// exponential delay, or moves to the dead set once MaxAttempts is reached.
// It reports whether the entry is now dead.
func (q *Queue) Nack(ctx context.Context, id string, cause error) (bool, error) {
	return q.release(ctx, id, cause, func(entry *Entry, now time.Time) bool {
		entry.Attempts++
		entry.AvailableAt = now.Add(retryDelay(entry.Attempts))
		return entry.Attempts >= q.cfg.MaxAttempts
	})
}

// Defer hands the entry back for another try after DeferDelay without
// using up an attempt. It is for work that is blocked rather than failing,
// such as a pipeline locked by another import.
func (q *Queue) Defer(ctx context.Context, id string, cause error) error {
	_, err := q.release(ctx, id, cause, func(entry *Entry, now time.Time) bool {
		entry.Deferrals++
		entry.AvailableAt = now.Add(q.cfg.DeferDelay)
		return false
	})
	return err
}

// release drops the lease on id after update has set its next delivery
// time. When update reports true the entry moves to the dead set.
func (q *Queue) release(_ context.Context, id string, cause error, update func(entry *Entry, now time.Time) bool) (bool, error) {
	if q.isClosed() {
		return false, ErrQueueClosed
	}
	if id == "" {
		return false, ErrEmptyEntryID
	}

	var dead bool
	key := []byte(prefixEntry + id)
	err := q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		now := q.now()
		entry.LastAttemptAt = now.UTC()
		if cause != nil {
			entry.LastError = cause.Error()
		}
		entry.LeaseHolder = ""
		entry.LeaseExpiry = time.Time{}
		dead = update(&entry, now)

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}

		if dead {
			if err := txn.Set([]byte(prefixDead+id), data); err != nil {
				return fmt.Errorf("set dead entry: %w", err)
			}
			return txn.Delete(key)
		}
		return txn.Set(key, data)
	})
	return dead, err
}

// retryDelay is 1m, 2m, 4m... capped at maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	d := time.Minute << (attempts - 1)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Pending lists live entries in FIFO order, leased or not.
func (q *Queue) Pending(ctx context.Context) ([]*Entry, error) {
	return q.list(ctx, prefixEntry)
}

// Dead lists entries that exhausted their attempts.
func (q *Queue) Dead(ctx context.Context) ([]*Entry, error) {
	return q.list(ctx, prefixDead)
}

func (q *Queue) list(ctx context.Context, prefix string) ([]*Entry, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}

	var entries []*Entry
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Queue: failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Stats counts entries and refreshes the queue depth gauges.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	live, err := q.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	dead, err := q.Dead(ctx)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	now := q.now()
	for _, e := range live {
		if e.leased(now) {
			s.Leased++
		} else {
			s.Pending++
		}
	}
	s.Dead = len(dead)
	metrics.UpdateQueueDepth(s.Pending, s.Leased, s.Dead)
	return s, nil
}
