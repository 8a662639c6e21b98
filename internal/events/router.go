// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
	"github.com/tomtom215/tractionsync/internal/queue"
)

// Handler consumes one topic of the bus.
type Handler struct {
	Name  string
	Topic string
	Fn    message.NoPublishHandlerFunc
}

// RouterConfig tunes the router middleware.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     30 * time.Second,
	}
}

// Router builds a watermill router consuming from the bus with panic
// recovery and retry middleware.
func (b *Bus) Router(cfg RouterConfig, handlers ...Handler) (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      2.0,
		Logger:          b.logger,
	}
	r.AddMiddleware(retry.Middleware)

	for _, h := range handlers {
		r.AddConsumerHandler(h.Name, h.Topic, b.subscriber, h.Fn)
	}
	return r, nil
}

// FetchCompletedHandler adapts fn into a Handler on the fetch completed
// topic. Undecodable payloads are logged and acknowledged.
func (b *Bus) FetchCompletedHandler(name string, fn func(ctx context.Context, ev *FetchCompleted) error) Handler {
	topic := b.Topic(FetchCompletedTopic)
	return Handler{
		Name:  name,
		Topic: topic,
		Fn: func(msg *message.Message) error {
			ev, err := UnmarshalFetchCompleted(msg.Payload)
			if err != nil {
				logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed fetch completed event")
				metrics.EventsConsumed.WithLabelValues(topic, "invalid").Inc()
				return nil
			}
			if err := fn(msg.Context(), ev); err != nil {
				metrics.EventsConsumed.WithLabelValues(topic, "error").Inc()
				return err
			}
			metrics.EventsConsumed.WithLabelValues(topic, "success").Inc()
			return nil
		},
	}
}

// Enqueuer is the part of the import queue the event handler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
}

// EnqueueOnFetchCompleted returns a handler that turns every fetch
// completed event into an import queue message for its directory.
func EnqueueOnFetchCompleted(q Enqueuer) func(ctx context.Context, ev *FetchCompleted) error {
	return func(ctx context.Context, ev *FetchCompleted) error {
		id, err := q.Enqueue(ctx, queue.Message{
			Type:      queue.TypeImport,
			Pipeline:  ev.Pipeline,
			Directory: ev.Directory,
		})
		if err != nil {
			return fmt.Errorf("enqueue import of %s: %w", ev.Directory, err)
		}
		failed := 0
		for _, r := range ev.Results {
			if r.Failed() {
				failed++
			}
		}
		logging.Info().
			Str("pipeline", ev.Pipeline).
			Str("directory", ev.Directory).
			Str("entry_id", id).
			Int("failed_steps", failed).
			Msg("Import queued after fetch")
		return nil
	}
}
