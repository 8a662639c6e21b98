// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package logging

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronLogger implements cron.Logger over zerolog. Key/value pairs become
// fields; an odd trailing key is dropped.
type CronLogger struct {
	logger zerolog.Logger
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger returns an adapter tagged with component=scheduler.
func NewCronLogger() *CronLogger {
	return &CronLogger{logger: WithComponent("scheduler")}
}

// Info is used by cron for schedule bookkeeping, so it logs at debug.
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug().Fields(kvFields(keysAndValues)).Msg(msg)
}

func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error().Err(err).Fields(kvFields(keysAndValues)).Msg(msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
