// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package transform

import (
	"context"
	"errors"

	"github.com/tomtom215/tractionsync/internal/locations"
)

// LocationByTitle resolves a remote location to a local branch or camp:
// the configured mapping first, then an exact title match. An unresolvable
// location skips the row; store failures are returned as errors.
func LocationByTitle(ctx context.Context, r *locations.Resolver, externalID, title string) (Result[int64], error) {
	id, err := r.Resolve(ctx, externalID, title)
	if errors.Is(err, locations.ErrNodeNotFound) {
		return SkipRow[int64](err.Error()), nil
	}
	if err != nil {
		return Result[int64]{}, err
	}
	return Ok(id), nil
}

// DestLookup resolves a source id to the node a migration created for it.
type DestLookup func(ctx context.Context, sourceID string) (int64, bool, error)

// SubcategoryByProgram finds the local program a remote Program belongs to.
// programs maps remote Program ids to their remote Program Category id
// (which is the local program); lookup turns that into a node id.
func SubcategoryByProgram(ctx context.Context, programs map[string]string, programID string, lookup DestLookup) (Result[int64], error) {
	categoryID, ok := programs[programID]
	if !ok || categoryID == "" {
		return SkipRow[int64]("Can't find a category"), nil
	}
	id, found, err := lookup(ctx, categoryID)
	if err != nil {
		return Result[int64]{}, err
	}
	if !found {
		return SkipRow[int64]("Category not found!"), nil
	}
	return Ok(id), nil
}
