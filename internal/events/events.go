// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tractionsync/internal/validation"
)

// FetchCompletedTopic is the topic suffix of the fetch completed event.
const FetchCompletedTopic = "fetch.completed"

// StepResult summarises one fetch step. Records are never carried in the
// event, only the counts reported by the remote API or the step error.
type StepResult struct {
	TotalSize int      `json:"totalSize,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Excluded  []string `json:"excluded,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Failed reports whether the step ended with an error.
func (r StepResult) Failed() bool { return r.Error != "" }

// FetchCompleted is published once per fetch, after every step has run. It
// is the only link between fetching and importing.
type FetchCompleted struct {
	EventID    string                `json:"event_id" validate:"required,uuid"`
	Pipeline   string                `json:"pipeline" validate:"required,pipeline"`
	Directory  string                `json:"directory" validate:"required,workdir"`
	Results    map[string]StepResult `json:"results"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// NewFetchCompleted builds an event with a fresh id and timestamp.
func NewFetchCompleted(pipeline, dir string, results map[string]StepResult) *FetchCompleted {
	return &FetchCompleted{
		EventID:    uuid.New().String(),
		Pipeline:   pipeline,
		Directory:  dir,
		Results:    results,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks the fields a consumer relies on.
func (e *FetchCompleted) Validate() error {
	return validation.ValidateStruct(e)
}

// Marshal encodes the event payload.
func (e *FetchCompleted) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalFetchCompleted decodes and validates an event payload.
func UnmarshalFetchCompleted(data []byte) (*FetchCompleted, error) {
	var e FetchCompleted
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
