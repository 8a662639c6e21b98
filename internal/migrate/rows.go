// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tractionsync/internal/jsonstream"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/store"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// Row is a fully transformed source record ready to commit.
type Row struct {
	SourceID   string
	Node       store.Node
	Paragraphs []Paragraph
}

// Paragraph is a sub-record created only after its row is committed.
type Paragraph struct {
	Type string
	Data map[string]any
}

// RowFunc maps one staged record to a Row. A skipped Result drops the
// record; an error marks it failed. Neither stops the batch.
type RowFunc func(ctx context.Context, rec tractionrec.Record) (transform.Result[Row], error)

// PrepareFunc runs once per import before any row, e.g. to load lookups
// from sibling files in dir.
type PrepareFunc func(ctx context.Context, dir string) error

// Store is the part of the content store row migrations use.
type Store interface {
	UpsertNode(ctx context.Context, n *store.Node) (int64, error)
	NodeExists(ctx context.Context, id int64) (bool, error)
	DeleteNode(ctx context.Context, id int64) error
	ReplaceParagraph(ctx context.Context, parentID int64, typ string, data map[string]any) (int64, error)
	LookupDest(ctx context.Context, migration, sourceID string) (store.MapEntry, bool, error)
	SaveMapping(ctx context.Context, migration string, e store.MapEntry) error
	DeleteMapping(ctx context.Context, migration, sourceID string) error
	MappedSources(ctx context.Context, migration string) ([]store.MapEntry, error)
}

// KeyFunc extracts the source id of a raw staged record.
type KeyFunc func(rec tractionrec.Record) string

// Spec describes a row migration.
type Spec struct {
	ID      string
	Source  string
	Key     KeyFunc
	Rows    RowFunc
	Prepare PrepareFunc
}

// RowMigration imports a JSON array file row by row into nodes, keeping a
// source id map for updates, sync deletion and rollback.
type RowMigration struct {
	id      string
	source  string
	store   Store
	key     KeyFunc
	rows    RowFunc
	prepare PrepareFunc
}

// NewRowMigration builds a migration reading spec.Source from the staging
// dir. Without a Key the top level Id field is used.
func NewRowMigration(spec Spec, st Store) *RowMigration {
	key := spec.Key
	if key == nil {
		key = TopLevelID
	}
	return &RowMigration{
		id:      spec.ID,
		source:  spec.Source,
		store:   st,
		key:     key,
		rows:    spec.Rows,
		prepare: spec.Prepare,
	}
}

// ID implements Migration.
func (m *RowMigration) ID() string { return m.id }

// Source implements Migration.
func (m *RowMigration) Source() string { return m.source }

// Import implements Migration. A missing source file imports nothing and
// deletes nothing, even with Sync.
func (m *RowMigration) Import(ctx context.Context, dir string, opts Options) (Result, error) {
	var res Result
	log := logging.Ctx(ctx).With().Str("migration", m.id).Logger()

	records, err := jsonstream.ReadFile[tractionrec.Record](filepath.Join(dir, m.source))
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("source", m.source).Msg("No staged file, nothing to import")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read %s: %w", m.source, err)
	}

	if m.prepare != nil {
		if err := m.prepare(ctx, dir); err != nil {
			return res, fmt.Errorf("prepare: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Total++

		key := m.key(rec)
		if key != "" {
			seen[key] = struct{}{}
		}
		out, err := m.rows(ctx, rec)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i, err))
			log.Warn().Err(err).Int("row", i).Msg("Row failed")
			continue
		}
		if out.Skipped() {
			res.Skipped++
			log.Info().Str("reason", out.Skip).Str("source_id", key).Msg("Row skipped")
			continue
		}

		row := out.Value
		if row.SourceID == "" {
			row.SourceID = key
		}
		created, changed, err := m.commit(ctx, row, opts.Update)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("row %s: %v", row.SourceID, err))
			log.Warn().Err(err).Str("source_id", row.SourceID).Msg("Row commit failed")
			continue
		}
		switch {
		case created:
			res.Imported++
		case changed:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	if opts.Sync {
		deleted, err := m.deleteMissing(ctx, seen)
		res.Deleted = deleted
		if err != nil {
			return res, fmt.Errorf("sync: %w", err)
		}
	}
	return res, nil
}

// commit saves the node, its map entry and then its paragraphs.
func (m *RowMigration) commit(ctx context.Context, row Row, force bool) (created, changed bool, err error) {
	if row.SourceID == "" {
		return false, false, tractionrec.ErrMissingID
	}
	hash, err := rowHash(row)
	if err != nil {
		return false, false, err
	}

	entry, found, err := m.store.LookupDest(ctx, m.id, row.SourceID)
	if err != nil {
		return false, false, err
	}
	if found {
		exists, err := m.store.NodeExists(ctx, entry.DestID)
		if err != nil {
			return false, false, err
		}
		if !exists {
			found = false
		} else if entry.Hash == hash && !force {
			return false, false, nil
		}
	}

	node := row.Node
	if found {
		node.ID = entry.DestID
	}
	id, err := m.store.UpsertNode(ctx, &node)
	if err != nil {
		return false, false, err
	}
	if err := m.store.SaveMapping(ctx, m.id, store.MapEntry{SourceID: row.SourceID, DestID: id, Hash: hash}); err != nil {
		return false, false, err
	}
	for _, p := range row.Paragraphs {
		if _, err := m.store.ReplaceParagraph(ctx, id, p.Type, p.Data); err != nil {
			return false, false, fmt.Errorf("materialize %s: %w", p.Type, err)
		}
	}
	return !found, found, nil
}

func (m *RowMigration) deleteMissing(ctx context.Context, seen map[string]struct{}) (int, error) {
	entries, err := m.store.MappedSources(ctx, m.id)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if _, ok := seen[e.SourceID]; ok {
			continue
		}
		if err := m.remove(ctx, e); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Rollback implements Migration.
func (m *RowMigration) Rollback(ctx context.Context) (int, error) {
	entries, err := m.store.MappedSources(ctx, m.id)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := m.remove(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

func (m *RowMigration) remove(ctx context.Context, e store.MapEntry) error {
	if err := m.store.DeleteNode(ctx, e.DestID); err != nil {
		return err
	}
	return m.store.DeleteMapping(ctx, m.id, e.SourceID)
}

// TopLevelID returns the record's Id field.
func TopLevelID(rec tractionrec.Record) string {
	switch v := rec["Id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func rowHash(row Row) (string, error) {
	data, err := json.Marshal(struct {
		Type       string         `json:"type"`
		Title      string         `json:"title"`
		Status     bool           `json:"status"`
		Fields     map[string]any `json:"fields"`
		Paragraphs []Paragraph    `json:"paragraphs"`
	}{row.Node.Type, row.Node.Title, row.Node.Status, row.Node.Fields, row.Paragraphs})
	if err != nil {
		return "", fmt.Errorf("hash row: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}
