// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"maps"
	"slices"
	"strings"
)

// namespaceTokens are removed from every key, in this order.
var namespaceTokens = []string{"TREX1__", "__c", "__r"}

// SimplifyKey strips the managed package namespace and custom field and
// relationship suffixes from a key.
func SimplifyKey(key string) string {
	for _, tok := range namespaceTokens {
		key = strings.ReplaceAll(key, tok, "")
	}
	return key
}

// Simplify returns a copy of v with every map key simplified and every
// "attributes" entry dropped, recursing into nested maps and slices.
//
// A lookup field and its relationship (Location__c and Location__r) both
// simplify to the same key. Keys are visited in sorted order so the
// relationship object, which sorts last, wins deterministically.
func Simplify(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return SimplifyRecord(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Simplify(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = SimplifyRecord(item)
		}
		return out
	default:
		return v
	}
}

// SimplifyRecord is Simplify for a single record.
func SimplifyRecord(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for _, k := range slices.Sorted(maps.Keys(r)) {
		nk := SimplifyKey(k)
		if nk == "attributes" {
			continue
		}
		out[nk] = Simplify(r[k])
	}
	return out
}
