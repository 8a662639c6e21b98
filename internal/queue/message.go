// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/tractionsync/internal/validation"
)

// Message types. The salesforce names are accepted for messages queued by
// older deployments.
const (
	TypeImport         = "traction_rec"
	TypeSync           = "traction_rec_sync"
	TypeSalesforce     = "salesforce"
	TypeSalesforceSync = "salesforce_sync"
	TypeCleanup        = "cleanup"
)

// Options are passed through to the migrations of an import.
type Options struct {
	Sync   bool `json:"sync,omitempty"`
	Update bool `json:"update,omitempty"`
}

// Message is one unit of queued work. An import message covers exactly one
// working directory.
type Message struct {
	Type      string  `json:"type" validate:"required,oneof=traction_rec traction_rec_sync salesforce salesforce_sync cleanup"`
	Pipeline  string  `json:"pipeline" validate:"required,pipeline"`
	Directory string  `json:"directory,omitempty" validate:"required_unless=Type cleanup,workdir"`
	Options   Options `json:"options"`
}

// IsImport reports whether the message asks for a directory import.
func (m Message) IsImport() bool {
	return m.Type != TypeCleanup
}

// IsSync reports whether destination rows missing from the batch should be
// removed. Either the type or the explicit option can ask for it.
func (m Message) IsSync() bool {
	return m.Options.Sync || strings.HasSuffix(m.Type, "_sync")
}

// InvalidMessageError describes a message that failed validation. Such a
// message is never retried.
type InvalidMessageError struct {
	Fields map[string]string
}

func (e *InvalidMessageError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+" failed "+tag)
	}
	return "invalid queue message: " + strings.Join(parts, ", ")
}

// Validate checks m against its struct tags.
func (m Message) Validate() error {
	err := validation.ValidateStruct(m)
	if err == nil {
		return nil
	}
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate message: %w", err)
	}
	return &InvalidMessageError{Fields: verr.Tags()}
}
