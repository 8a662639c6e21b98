// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("store: not found")

// Node is one piece of destination content.
type Node struct {
	ID        int64
	Type      string
	Title     string
	Status    bool
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertNode inserts n when n.ID is zero, otherwise replaces the stored
// node. The node id is returned.
func (s *Store) UpsertNode(ctx context.Context, n *Node) (_ int64, err error) {
	defer observe("upsert", "nodes", time.Now(), &err)
	fields, err := json.Marshal(nonNil(n.Fields))
	if err != nil {
		return 0, fmt.Errorf("encode fields: %w", err)
	}
	now := time.Now().UTC()

	if n.ID == 0 {
		var id int64
		err := s.conn.QueryRowContext(ctx,
			`INSERT INTO nodes (type, title, status, fields, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			n.Type, n.Title, n.Status, string(fields), now, now,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert node: %w", err)
		}
		n.ID = id
		return id, nil
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE nodes SET type = ?, title = ?, status = ?, fields = ?, updated_at = ? WHERE id = ?`,
		n.Type, n.Title, n.Status, string(fields), now, n.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("update node %d: %w", n.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, fmt.Errorf("update node %d: %w", n.ID, ErrNotFound)
	}
	return n.ID, nil
}

// GetNode loads one node.
func (s *Store) GetNode(ctx context.Context, id int64) (_ *Node, err error) {
	defer observe("get", "nodes", time.Now(), &err)
	var (
		n      Node
		fields string
	)
	err = s.conn.QueryRowContext(ctx,
		`SELECT id, type, title, status, fields, created_at, updated_at FROM nodes WHERE id = ?`, id,
	).Scan(&n.ID, &n.Type, &n.Title, &n.Status, &fields, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fields), &n.Fields); err != nil {
		return nil, fmt.Errorf("decode node %d fields: %w", id, err)
	}
	return &n, nil
}

// NodeExists reports whether a node with id exists.
func (s *Store) NodeExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM nodes WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("node exists %d: %w", id, err)
	}
	return count > 0, nil
}

// FindNodeIDByTitle returns the lowest id among nodes with exactly this
// title and one of the given types.
func (s *Store) FindNodeIDByTitle(ctx context.Context, title string, types []string) (_ int64, _ bool, err error) {
	defer observe("find_by_title", "nodes", time.Now(), &err)
	if len(types) == 0 {
		return 0, false, nil
	}
	args := make([]any, 0, len(types)+1)
	args = append(args, title)
	for _, t := range types {
		args = append(args, t)
	}
	query := fmt.Sprintf(`SELECT id FROM nodes WHERE title = ? AND type IN (%s) ORDER BY id LIMIT 1`, placeholders(len(types)))

	var id int64
	err = s.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find node by title: %w", err)
	}
	return id, true, nil
}

// DeleteNode removes a node. Its paragraphs are left for the orphan
// collector. Deleting a missing node is not an error.
func (s *Store) DeleteNode(ctx context.Context, id int64) (err error) {
	defer observe("delete", "nodes", time.Now(), &err)
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	return nil
}

// UpdateNodeFields merges fields into the node's stored fields.
func (s *Store) UpdateNodeFields(ctx context.Context, id int64, fields map[string]any) error {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if n.Fields == nil {
		n.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		n.Fields[k] = v
	}
	_, err = s.UpsertNode(ctx, n)
	return err
}

// CountNodes counts nodes of one type; an empty type counts all nodes.
func (s *Store) CountNodes(ctx context.Context, typ string) (int, error) {
	var (
		count int
		err   error
	)
	if typ == "" {
		err = s.conn.QueryRowContext(ctx, `SELECT count(*) FROM nodes`).Scan(&count)
	} else {
		err = s.conn.QueryRowContext(ctx, `SELECT count(*) FROM nodes WHERE type = ?`, typ).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
