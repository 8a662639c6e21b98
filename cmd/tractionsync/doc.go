// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Command tractionsync fetches program, class, session and membership data
// from TractionRec (Salesforce) and imports it into the content store.
//
// # Commands
//
//	tractionsync serve
//	tractionsync fetch                  [-pipeline sessions|memberships]
//	tractionsync import                 [-pipeline ...] [-sync] [-update] [-dir path]
//	tractionsync rollback               [-pipeline ...]
//	tractionsync reset-lock             [-pipeline ...]
//	tractionsync reset-status           [-pipeline ...]
//	tractionsync clean-up               [-pipeline ...] [-database] [-limit n]
//	tractionsync update-total-available [-pipeline ...]
//	tractionsync drain
//	tractionsync status                 [-pipeline ...]
//
// serve runs the supervisor tree: an optional embedded NATS server, the
// event router that turns fetch completed events into queue messages, the
// cron scheduler (fetch, queue drain, backup cleanup, state GC) and the
// admin HTTP API. Everything else runs once and exits.
//
// Commands other than serve open the badger state database and the DuckDB
// content store directly. Both allow a single process, so they fail while
// serve is running against the same files. Use the admin API
// (/api/v1/status, /api/v1/pipelines/{pipeline}/import, cleanup and fetch)
// of the running process instead.
//
// Outside serve, fetch publishes its event over NATS when an external
// server is configured so a running serve process picks it up. With the
// in-process channel transport the event goes straight to the durable
// queue, and a later drain or serve imports it.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 (highest priority wins):
//   - Environment variables
//   - .env file (DOTENV_PATH, default ./.env)
//   - Config file (CONFIG_PATH or config.yaml)
//   - Built-in defaults
//
// Fetching needs the TractionRec JWT bearer settings: TRACTIONREC_LOGIN_URL,
// TRACTIONREC_SERVICES_URL, TRACTIONREC_API_BASE_URL,
// TRACTIONREC_CONSUMER_KEY, TRACTIONREC_LOGIN_USER and
// TRACTIONREC_PRIVATE_KEY_PATH.
//
// # Exit Codes
//
// 0 on success and on operator notices such as a disabled pipeline or
// nothing to import, 1 when the command or an import failed, and 2 on
// usage errors.
package main
