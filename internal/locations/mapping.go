// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package locations

import (
	"strings"
)

// Entry maps one remote location to a local location node.
type Entry struct {
	ExternalID string
	LocalID    string
	Comment    string
}

// Mapping is the parsed locations setting. The zero value is an empty
// mapping.
type Mapping struct {
	entries map[string]Entry
	order   []string
}

// Parse reads newline separated externalId:localId[:comment] lines. Lines
// with fewer than two parts or no external id are skipped. An empty local id
// keeps the location in fetch scope without pinning it to a node. When an
// external id repeats, the last line wins but the id keeps its first
// position.
func Parse(text string) *Mapping {
	m := &Mapping{entries: make(map[string]Entry)}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		e := Entry{
			ExternalID: strings.TrimSpace(parts[0]),
			LocalID:    strings.TrimSpace(parts[1]),
		}
		if e.ExternalID == "" {
			continue
		}
		if len(parts) == 3 {
			e.Comment = strings.TrimSpace(parts[2])
		} else {
			e.Comment = e.ExternalID + " => " + e.LocalID
		}
		if _, seen := m.entries[e.ExternalID]; !seen {
			m.order = append(m.order, e.ExternalID)
		}
		m.entries[e.ExternalID] = e
	}
	return m
}

// Entries returns the mapping in configuration order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// Pinned reports whether the entry names a local node.
func (e Entry) Pinned() bool {
	return e.LocalID != "" && e.LocalID != "0"
}

// Lookup returns the entry for a remote location id.
func (m *Mapping) Lookup(externalID string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.entries[externalID]
	return e, ok
}

// MappedIDs returns every configured remote location id once, in
// configuration order. Fetch queries are scoped to this list.
func (m *Mapping) MappedIDs() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

// Len returns the number of mapped locations.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}
