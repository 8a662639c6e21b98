// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package jsonstream

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("jsonstream: dumper is closed")

// Dumper writes a JSON array to a file one element at a time. The file holds
// a valid array only once Close has run, so callers defer Close right after
// Create.
type Dumper struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

// Create truncates or creates path, creating missing parent directories,
// and writes the opening bracket.
func Create(path string) (*Dumper, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &Dumper{path: path, f: f, w: bufio.NewWriter(f)}
	if err := d.w.WriteByte('['); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return d, nil
}

// Path returns the file being written.
func (d *Dumper) Path() string { return d.path }

// Count returns the number of items pushed so far.
func (d *Dumper) Count() int { return d.count }

// Push appends one item, preceded by a separator unless it is the first.
func (d *Dumper) Push(item any) error {
	if d.closed {
		return ErrClosed
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %d: %w", d.count, err)
	}
	if d.count > 0 {
		if err := d.w.WriteByte(','); err != nil {
			return err
		}
	}
	if _, err := d.w.Write(data); err != nil {
		return err
	}
	d.count++
	return nil
}

// PushAll pushes a typed slice in order, stopping at the first error.
func PushAll[T any](d *Dumper, items []T) error {
	for _, item := range items {
		if err := d.Push(item); err != nil {
			return err
		}
	}
	return nil
}

// PushMultiple pushes items in order, stopping at the first error.
func (d *Dumper) PushMultiple(items []any) error {
	return PushAll(d, items)
}

// Close writes the closing bracket, flushes and closes the file. Calling it
// again is a no-op.
func (d *Dumper) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.w.WriteByte(']'); err != nil {
		d.f.Close()
		return err
	}
	if err := d.w.Flush(); err != nil {
		d.f.Close()
		return fmt.Errorf("flush %s: %w", d.path, err)
	}
	return d.f.Close()
}

// WriteFile writes v to path as indented JSON in one go, creating missing
// parent directories.
func WriteFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the JSON array stored at path.
func ReadFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}
