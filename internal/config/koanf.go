// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tractionsync/config.yaml",
	"/etc/tractionsync/config.yml",
}

const (
	// ConfigPathEnvVar overrides the config file path.
	ConfigPathEnvVar = "CONFIG_PATH"

	// DotenvPathEnvVar overrides the .env file path.
	DotenvPathEnvVar = "DOTENV_PATH"
)

// BackupLimitChoices are the accepted values for backup_limit.
var BackupLimitChoices = []int{5, 10, 15, 20, 25, 35, 40, 45, 50}

func defaultConfig() *Config {
	return &Config{
		TractionRec: TractionRecConfig{
			LoginURL:          "https://login.salesforce.com",
			Timezone:          "America/New_York",
			Timeout:           30 * time.Second,
			MaxRetries:        5,
			RetryBaseDelay:    time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Sessions: PipelineConfig{
			Enabled:         false,
			FetchStatus:     false,
			BackupJSON:      true,
			BackupLimit:     15,
			Root:            "/data/traction_rec_import",
			LockName:        "tr_import",
			MigrationGroup:  "tr_import",
			FetchSchedule:   "0 0 */6 * * *",
			CleanupSchedule: "0 30 3 * * *",
		},
		Memberships: PipelineConfig{
			Enabled:         false,
			FetchStatus:     false,
			BackupJSON:      true,
			BackupLimit:     15,
			Root:            "/data/traction_rec_membership_import",
			LockName:        "tr_membership_import",
			Migrations:      []string{"tr_memberships_import"},
			FetchSchedule:   "0 0 4 * * *",
			CleanupSchedule: "0 45 3 * * *",
		},
		Membership: MembershipConfig{
			DefaultType: "membership",
		},
		Lock: LockConfig{
			Backend: "badger",
			TTL:     1200 * time.Second,
		},
		State: StateConfig{
			Path:       "/data/state",
			SyncWrites: true,
			GCSchedule: "0 15 * * * *",
		},
		Store: StoreConfig{
			Path:      "/data/content.duckdb",
			Threads:   0,
			MaxMemory: "1GB",
		},
		Events: EventsConfig{
			Transport:    "channel",
			NATSURL:      "nats://127.0.0.1:4222",
			TopicPrefix:  "tractionsync",
			EmbeddedHost: "127.0.0.1",
			EmbeddedPort: 4222,
		},
		Queue: QueueConfig{
			LeaseDuration: 30 * time.Minute,
			MaxAttempts:   3,
			BatchSize:     10,
			DeferDelay:    5 * time.Minute,
			DrainSchedule: "0 */5 * * * *",
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8087,
			Timeout:           30 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from, in increasing priority:
//  1. Built-in defaults
//  2. YAML config file (CONFIG_PATH or DefaultConfigPaths), if present
//  3. .env file (DOTENV_PATH or ./.env), if present; never overrides real env vars
//  4. Environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadDotenv populates the process environment from a .env file. A missing
// file is not an error.
func loadDotenv() error {
	path := os.Getenv(DotenvPathEnvVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// sliceConfigPaths are parsed from comma separated env values.
var sliceConfigPaths = []string{
	"sessions.migrations",
	"memberships.migrations",
	"membership.exclude",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
//
// Examples:
//   - TRACTIONREC_CONSUMER_KEY -> tractionrec.consumer_key
//   - SESSIONS_ENABLED -> sessions.enabled
//   - LOCK_BACKEND -> lock.backend
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"tractionrec_login_url":           "tractionrec.login_url",
		"tractionrec_services_url":        "tractionrec.services_url",
		"tractionrec_api_base_url":        "tractionrec.api_base_url",
		"tractionrec_consumer_key":        "tractionrec.consumer_key",
		"tractionrec_login_user":          "tractionrec.login_user",
		"tractionrec_private_key_path":    "tractionrec.private_key_path",
		"tractionrec_community_url":       "tractionrec.community_url",
		"tractionrec_timezone":            "tractionrec.timezone",
		"tractionrec_timeout":             "tractionrec.timeout",
		"tractionrec_max_retries":         "tractionrec.max_retries",
		"tractionrec_retry_base_delay":    "tractionrec.retry_base_delay",
		"tractionrec_requests_per_second": "tractionrec.requests_per_second",
		"tractionrec_burst":               "tractionrec.burst",

		"sessions_enabled":          "sessions.enabled",
		"sessions_fetch_status":     "sessions.fetch_status",
		"sessions_backup_json":      "sessions.backup_json",
		"sessions_backup_limit":     "sessions.backup_limit",
		"sessions_root":             "sessions.root",
		"sessions_lock_name":        "sessions.lock_name",
		"sessions_migration_group":  "sessions.migration_group",
		"sessions_migrations":       "sessions.migrations",
		"sessions_fetch_schedule":   "sessions.fetch_schedule",
		"sessions_cleanup_schedule": "sessions.cleanup_schedule",

		"memberships_enabled":          "memberships.enabled",
		"memberships_fetch_status":     "memberships.fetch_status",
		"memberships_backup_json":      "memberships.backup_json",
		"memberships_backup_limit":     "memberships.backup_limit",
		"memberships_root":             "memberships.root",
		"memberships_lock_name":        "memberships.lock_name",
		"memberships_migration_group":  "memberships.migration_group",
		"memberships_migrations":       "memberships.migrations",
		"memberships_fetch_schedule":   "memberships.fetch_schedule",
		"memberships_cleanup_schedule": "memberships.cleanup_schedule",

		"membership_exclude":      "membership.exclude",
		"membership_default_type": "membership.default_type",
		"membership_location_id":  "membership.location_id",

		"locations_mapping": "locations.mapping",

		"lock_backend":        "lock.backend",
		"lock_ttl":            "lock.ttl",
		"lock_redis_addr":     "lock.redis_addr",
		"lock_redis_password": "lock.redis_password",
		"lock_redis_db":       "lock.redis_db",

		"state_path":        "state.path",
		"state_sync_writes": "state.sync_writes",
		"state_gc_schedule": "state.gc_schedule",

		"duckdb_path":       "store.path",
		"duckdb_threads":    "store.threads",
		"duckdb_max_memory": "store.max_memory",

		"events_transport":    "events.transport",
		"nats_url":            "events.nats_url",
		"events_topic_prefix": "events.topic_prefix",
		"nats_embedded":       "events.embedded_nats",
		"nats_embedded_host":  "events.embedded_host",
		"nats_embedded_port":  "events.embedded_port",

		"queue_lease_duration": "queue.lease_duration",
		"queue_max_attempts":   "queue.max_attempts",
		"queue_batch_size":     "queue.batch_size",
		"queue_defer_delay":    "queue.defer_delay",
		"queue_drain_schedule": "queue.drain_schedule",

		"http_enabled":        "server.enabled",
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"rate_limit_requests": "server.rate_limit_requests",
		"rate_limit_window":   "server.rate_limit_window",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
