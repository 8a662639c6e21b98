// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package config

import (
	"path/filepath"
	"time"
)

// Pipeline names. Each pipeline has its own directory root, lock and migrations.
const (
	PipelineSessions    = "sessions"
	PipelineMemberships = "memberships"
)

// Config is the complete TractionSync configuration.
type Config struct {
	TractionRec TractionRecConfig `koanf:"tractionrec"`
	Sessions    PipelineConfig    `koanf:"sessions"`
	Memberships PipelineConfig    `koanf:"memberships"`
	Membership  MembershipConfig  `koanf:"membership"`
	Locations   LocationsConfig   `koanf:"locations"`
	Lock        LockConfig        `koanf:"lock"`
	State       StateConfig       `koanf:"state"`
	Store       StoreConfig       `koanf:"store"`
	Events      EventsConfig      `koanf:"events"`
	Queue       QueueConfig       `koanf:"queue"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// TractionRecConfig holds the remote API connection settings.
type TractionRecConfig struct {
	// LoginURL is the OAuth audience and token endpoint host,
	// e.g. https://login.salesforce.com.
	LoginURL string `koanf:"login_url"`

	// ServicesURL is the versioned REST base used for queries,
	// e.g. https://example.my.salesforce.com/services/data/v49.0/.
	ServicesURL string `koanf:"services_url"`

	// APIBaseURL is the instance host that nextRecordsUrl paths are resolved against.
	APIBaseURL string `koanf:"api_base_url"`

	ConsumerKey    string `koanf:"consumer_key"`
	LoginUser      string `koanf:"login_user"`
	PrivateKeyPath string `koanf:"private_key_path"`

	// CommunityURL is the public community site used for registration links.
	CommunityURL string `koanf:"community_url"`

	// Timezone is the site timezone remote dates and times are expressed in.
	Timezone string `koanf:"timezone"`

	Timeout           time.Duration `koanf:"timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// PipelineConfig configures one fetch/import pipeline.
type PipelineConfig struct {
	Enabled     bool `koanf:"enabled"`
	FetchStatus bool `koanf:"fetch_status"`
	BackupJSON  bool `koanf:"backup_json"`
	BackupLimit int  `koanf:"backup_limit"`

	// Root holds json/ (fetched working directories), backup/ and the
	// staging files read by migrations.
	Root string `koanf:"root"`

	LockName       string   `koanf:"lock_name"`
	MigrationGroup string   `koanf:"migration_group"`
	Migrations     []string `koanf:"migrations"`

	// Cron expressions with a seconds field. Empty disables the job.
	FetchSchedule   string `koanf:"fetch_schedule"`
	CleanupSchedule string `koanf:"cleanup_schedule"`
}

// SourceDir is where fetched working directories accumulate.
func (p PipelineConfig) SourceDir() string {
	return filepath.Join(p.Root, "json")
}

// TargetDir is the stable staging location migrations read from.
func (p PipelineConfig) TargetDir() string {
	return p.Root
}

// BackupDir is where processed working directories are archived.
func (p PipelineConfig) BackupDir() string {
	return filepath.Join(p.Root, "backup")
}

// MembershipConfig holds membership-only fetch and transform options.
type MembershipConfig struct {
	Exclude     []string `koanf:"exclude"`
	DefaultType string   `koanf:"default_type"`
	LocationID  string   `koanf:"location_id"`
}

// LocationsConfig holds the admin-maintained location mapping.
type LocationsConfig struct {
	// Mapping is newline separated externalId:localId:comment records.
	Mapping string `koanf:"mapping"`
}

// LockConfig selects the import lock backend.
type LockConfig struct {
	Backend       string        `koanf:"backend"`
	TTL           time.Duration `koanf:"ttl"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
}

// StateConfig configures the BadgerDB instance shared by the queue,
// the badger lock backend and run statistics.
type StateConfig struct {
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
	// GCSchedule runs value log garbage collection in serve mode.
	GCSchedule string `koanf:"gc_schedule"`
}

// StoreConfig configures the DuckDB content store.
type StoreConfig struct {
	Path      string `koanf:"path"`
	Threads   int    `koanf:"threads"`
	MaxMemory string `koanf:"max_memory"`
}

// EventsConfig selects the transport for the fetch completed event.
type EventsConfig struct {
	Transport   string `koanf:"transport"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix"`
	// EmbeddedNATS starts an in-process NATS server in serve mode and
	// points the nats transport at it.
	EmbeddedNATS bool   `koanf:"embedded_nats"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`
}

// QueueConfig tunes the durable import queue.
type QueueConfig struct {
	LeaseDuration time.Duration `koanf:"lease_duration"`
	MaxAttempts   int           `koanf:"max_attempts"`
	BatchSize     int           `koanf:"batch_size"`
	// DeferDelay is how long a message waits after finding its pipeline
	// locked or its migrations busy. Deferrals do not use up attempts.
	DeferDelay time.Duration `koanf:"defer_delay"`
	// DrainSchedule runs the worker over every pipeline in serve mode.
	DrainSchedule string `koanf:"drain_schedule"`
}

// ServerConfig configures the admin HTTP API started by serve.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors logging.Config for the file/env layers.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Pipeline returns the pipeline configuration by name.
func (c *Config) Pipeline(name string) (PipelineConfig, bool) {
	switch name {
	case PipelineSessions:
		return c.Sessions, true
	case PipelineMemberships:
		return c.Memberships, true
	default:
		return PipelineConfig{}, false
	}
}

// PipelineNames lists the configured pipelines in a stable order.
func (c *Config) PipelineNames() []string {
	return []string{PipelineSessions, PipelineMemberships}
}

// RemoteRequired reports whether any pipeline needs the remote API.
func (c *Config) RemoteRequired() bool {
	return c.Sessions.FetchStatus || c.Memberships.FetchStatus
}
