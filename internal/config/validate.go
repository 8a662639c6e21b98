// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.validateTractionRec(); err != nil {
		return err
	}
	if err := c.validatePipeline(PipelineSessions, &c.Sessions); err != nil {
		return err
	}
	if err := c.validatePipeline(PipelineMemberships, &c.Memberships); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateTractionRec() error {
	tr := &c.TractionRec
	if _, err := time.LoadLocation(tr.Timezone); err != nil {
		return fmt.Errorf("TRACTIONREC_TIMEZONE %q is not a valid timezone: %w", tr.Timezone, err)
	}
	if tr.Timeout <= 0 {
		return fmt.Errorf("TRACTIONREC_TIMEOUT must be positive")
	}
	if tr.MaxRetries < 0 {
		return fmt.Errorf("TRACTIONREC_MAX_RETRIES must not be negative")
	}
	if tr.RequestsPerSecond < 0 {
		return fmt.Errorf("TRACTIONREC_REQUESTS_PER_SECOND must not be negative")
	}

	if !c.RemoteRequired() {
		return nil
	}
	required := map[string]string{
		"TRACTIONREC_LOGIN_URL":        tr.LoginURL,
		"TRACTIONREC_SERVICES_URL":     tr.ServicesURL,
		"TRACTIONREC_API_BASE_URL":     tr.APIBaseURL,
		"TRACTIONREC_CONSUMER_KEY":     tr.ConsumerKey,
		"TRACTIONREC_LOGIN_USER":       tr.LoginUser,
		"TRACTIONREC_PRIVATE_KEY_PATH": tr.PrivateKeyPath,
	}
	var missing []string
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("fetch is enabled but %s not set", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validatePipeline(name string, p *PipelineConfig) error {
	prefix := strings.ToUpper(name)
	if p.Root == "" {
		return fmt.Errorf("%s_ROOT is required", prefix)
	}
	if p.LockName == "" {
		return fmt.Errorf("%s_LOCK_NAME is required", prefix)
	}
	if p.MigrationGroup == "" && len(p.Migrations) == 0 {
		return fmt.Errorf("%s_MIGRATION_GROUP or %s_MIGRATIONS is required", prefix, prefix)
	}
	if !slices.Contains(BackupLimitChoices, p.BackupLimit) {
		return fmt.Errorf("%s_BACKUP_LIMIT must be one of %v, got %d", prefix, BackupLimitChoices, p.BackupLimit)
	}
	return nil
}

func (c *Config) validateLock() error {
	switch c.Lock.Backend {
	case "badger":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("LOCK_REDIS_ADDR is required when LOCK_BACKEND=redis")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be badger or redis, got %q", c.Lock.Backend)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.State.Path == "" {
		return fmt.Errorf("STATE_PATH is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Store.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Transport {
	case "channel":
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_TRANSPORT=nats")
		}
	default:
		return fmt.Errorf("EVENTS_TRANSPORT must be channel or nats, got %q", c.Events.Transport)
	}
	if c.Events.TopicPrefix == "" {
		return fmt.Errorf("EVENTS_TOPIC_PREFIX is required")
	}
	if c.Events.EmbeddedNATS && (c.Events.EmbeddedPort < -1 || c.Events.EmbeddedPort > 65535) {
		return fmt.Errorf("NATS_EMBEDDED_PORT must be -1 (random) or a TCP port, got %d", c.Events.EmbeddedPort)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.LeaseDuration <= 0 {
		return fmt.Errorf("QUEUE_LEASE_DURATION must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be at least 1")
	}
	if c.Queue.DeferDelay <= 0 {
		return fmt.Errorf("QUEUE_DEFER_DELAY must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	return nil
}
