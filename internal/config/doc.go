// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package config loads and validates TractionSync configuration.
//
// Sources are layered with koanf, lowest priority first: built-in defaults,
// a YAML file, a .env file and finally environment variables. Each pipeline
// (sessions, memberships) has its own PipelineConfig with the directory
// root, lock name and migration list it runs.
//
// Example config.yaml:
//
//	tractionrec:
//	  services_url: https://example.my.salesforce.com/services/data/v49.0/
//	  api_base_url: https://example.my.salesforce.com
//	  consumer_key: 3MVG9...
//	  login_user: integration@example.org
//	  private_key_path: /run/secrets/tractionrec.key
//	  community_url: https://example.force.com/community
//	sessions:
//	  enabled: true
//	  fetch_status: true
//	  backup_limit: 10
//	locations:
//	  mapping: |
//	    a0x000000001:12:Downtown Y
//	    a0x000000002:15:Westside
package config
