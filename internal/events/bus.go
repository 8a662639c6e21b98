// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Transports understood by NewBus.
const (
	TransportChannel = "channel"
	TransportNATS    = "nats"
)

// Bus publishes and subscribes pipeline events over the configured
// transport. The channel transport blocks a publish until every subscriber
// has acknowledged it, so a fetch run from the CLI has enqueued its import
// by the time Fetch returns.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prefix     string
	logger     watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus for cfg.Transport.
func NewBus(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	switch cfg.Transport {
	case "", TransportChannel:
		return NewChannelBus(cfg.TopicPrefix, logger), nil
	case TransportNATS:
		return newNATSBus(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown events transport %q", cfg.Transport)
	}
}

// NewChannelBus creates an in-process bus.
func NewChannelBus(prefix string, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{publisher: ch, subscriber: ch, prefix: prefix, logger: logger}
}

func newNATSBus(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: queueGroup(cfg.TopicPrefix),
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Bus{publisher: pub, subscriber: sub, prefix: cfg.TopicPrefix, logger: logger}, nil
}

func queueGroup(prefix string) string {
	if prefix == "" {
		return "tractionsync"
	}
	return prefix
}

// Topic returns the full topic name for a suffix.
func (b *Bus) Topic(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimSuffix(b.prefix, ".") + "." + name
}

// Logger returns the watermill logger the bus was created with.
func (b *Bus) Logger() watermill.LoggerAdapter { return b.logger }

// PublishFetchCompleted publishes ev on the fetch completed topic.
func (b *Bus) PublishFetchCompleted(_ context.Context, ev *FetchCompleted) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("event bus is closed")
	}

	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid fetch completed event: %w", err)
	}
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(ev.EventID, payload)
	msg.Metadata.Set("pipeline", ev.Pipeline)
	msg.Metadata.Set("directory", ev.Directory)

	topic := b.Topic(FetchCompletedTopic)
	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Close shuts down the transport. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
