// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package locations

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tomtom215/tractionsync/internal/cache"
)

// ErrNodeNotFound means a location could not be resolved to a local node.
var ErrNodeNotFound = errors.New("location node not found")

// LocationTypes are the node types a title search may match.
var LocationTypes = []string{"branch", "camp"}

// NodeFinder is the part of the content store the resolver needs.
type NodeFinder interface {
	NodeExists(ctx context.Context, id int64) (bool, error)
	FindNodeIDByTitle(ctx context.Context, title string, types []string) (int64, bool, error)
}

// Resolver turns remote location references into local node ids.
type Resolver struct {
	Mapping *Mapping
	Nodes   NodeFinder
	// Titles memoises successful title searches. Optional.
	Titles *cache.LRU[string, int64]
}

// MappedNode returns the node mapped to externalID. The boolean is false
// when the id is not mapped or its entry has no local id. A mapping that points at a missing node is an
// ErrNodeNotFound error carrying the entry comment.
func (r *Resolver) MappedNode(ctx context.Context, externalID string) (int64, bool, error) {
	e, ok := r.Mapping.Lookup(externalID)
	if !ok || !e.Pinned() {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(e.LocalID, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s", ErrNodeNotFound, e.Comment)
	}
	exists, err := r.Nodes.NodeExists(ctx, id)
	if err != nil {
		return 0, true, fmt.Errorf("load location node %d: %w", id, err)
	}
	if !exists {
		return 0, true, fmt.Errorf("%w: %s", ErrNodeNotFound, e.Comment)
	}
	return id, true, nil
}

// Resolve finds the local node for a remote location: the configured
// mapping first, then an exact title match among LocationTypes. A mapped id
// never falls back to the title search.
func (r *Resolver) Resolve(ctx context.Context, externalID, title string) (int64, error) {
	if id, mapped, err := r.MappedNode(ctx, externalID); mapped {
		return id, err
	}

	if r.Titles != nil {
		if id, ok := r.Titles.Get(title); ok {
			return id, nil
		}
	}
	id, found, err := r.Nodes.FindNodeIDByTitle(ctx, title, LocationTypes)
	if err != nil {
		return 0, fmt.Errorf("find location %q: %w", title, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNodeNotFound, title)
	}
	if r.Titles != nil {
		r.Titles.Add(title, id)
	}
	return id, nil
}

// Reset forgets memoised title searches, so nodes deleted since the last
// import are searched again.
func (r *Resolver) Reset() {
	if r.Titles != nil {
		r.Titles.Clear()
	}
}
