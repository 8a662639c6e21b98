// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Paragraph is a sub-record owned by a node, e.g. a session time window.
type Paragraph struct {
	ID       int64
	ParentID int64
	Type     string
	Data     map[string]any
}

// ReplaceParagraph drops the parent's paragraphs of this type and stores a
// new one, returning its id.
func (s *Store) ReplaceParagraph(ctx context.Context, parentID int64, typ string, data map[string]any) (_ int64, err error) {
	defer observe("replace", "paragraphs", time.Now(), &err)
	encoded, err := json.Marshal(nonNil(data))
	if err != nil {
		return 0, fmt.Errorf("encode paragraph: %w", err)
	}

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM paragraphs WHERE parent_id = ? AND type = ?`, parentID, typ); err != nil {
			return fmt.Errorf("delete paragraphs: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO paragraphs (parent_id, type, data, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
			parentID, typ, string(encoded), time.Now().UTC(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("replace paragraph for node %d: %w", parentID, err)
	}
	return id, nil
}

// Paragraphs lists a node's paragraphs in id order.
func (s *Store) Paragraphs(ctx context.Context, parentID int64) ([]Paragraph, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, parent_id, type, data FROM paragraphs WHERE parent_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list paragraphs: %w", err)
	}
	defer rows.Close()

	var out []Paragraph
	for rows.Next() {
		var (
			p    Paragraph
			data string
		)
		if err := rows.Scan(&p.ID, &p.ParentID, &p.Type, &data); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &p.Data); err != nil {
			return nil, fmt.Errorf("decode paragraph %d: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OrphanParagraphIDs returns up to limit ids of paragraphs whose parent
// node no longer exists.
func (s *Store) OrphanParagraphIDs(ctx context.Context, limit int) (_ []int64, err error) {
	defer observe("find_orphans", "paragraphs", time.Now(), &err)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT p.id FROM paragraphs p
		 LEFT JOIN nodes n ON n.id = p.parent_id
		 WHERE n.id IS NULL
		 ORDER BY p.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("find orphan paragraphs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteParagraphs removes paragraphs by id in one statement.
func (s *Store) DeleteParagraphs(ctx context.Context, ids []int64) (_ int, err error) {
	defer observe("delete", "paragraphs", time.Now(), &err)
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM paragraphs WHERE id IN (%s)`, placeholders(len(ids))), args...)
	if err != nil {
		return 0, fmt.Errorf("delete paragraphs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteOrphanParagraphs deletes up to limit orphaned paragraphs, chunk ids
// per statement, and returns how many were removed.
func (s *Store) DeleteOrphanParagraphs(ctx context.Context, limit, chunk int) (int, error) {
	if chunk <= 0 {
		chunk = 50
	}
	ids, err := s.OrphanParagraphIDs(ctx, limit)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		n, err := s.DeleteParagraphs(ctx, ids[start:end])
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
