// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package soql

import (
	"errors"
	"strings"
)

// ErrTableNotSet is returned by Build when no table was set.
var ErrTableNotSet = errors.New("soql: table is not set")

// Condition is a single "field operator value" predicate. Value is rendered
// verbatim, so string literals must already be quoted (see Quote).
type Condition struct {
	Field    string
	Operator string
	Value    string
}

// Alter is applied to a query right before it is executed. The context is
// the name of the gateway operation that built the query, so a deployment
// can restrict or widen individual queries.
type Alter func(q *Query, context string)

// Query builds a SELECT statement. The zero value is usable once a table is set.
type Query struct {
	table            string
	fields           []string
	conditions       []Condition
	customConditions []string
}

// New returns a query selecting from table.
func New(table string) *Query {
	return &Query{table: table}
}

// SetTable replaces the table.
func (q *Query) SetTable(table string) *Query {
	q.table = table
	return q
}

// AddField appends one or more selected fields.
func (q *Query) AddField(names ...string) *Query {
	q.fields = append(q.fields, names...)
	return q
}

// AddCondition appends a predicate. An empty operator means "=".
func (q *Query) AddCondition(field, value, operator string) *Query {
	if operator == "" {
		operator = "="
	}
	q.conditions = append(q.conditions, Condition{Field: field, Operator: operator, Value: value})
	return q
}

// RemoveCondition drops every predicate on field.
func (q *Query) RemoveCondition(field string) *Query {
	kept := q.conditions[:0]
	for _, c := range q.conditions {
		if c.Field != field {
			kept = append(kept, c)
		}
	}
	q.conditions = kept
	return q
}

// AddCustomCondition appends a raw expression. It is not validated and is
// wrapped in parentheses when rendered.
func (q *Query) AddCustomCondition(expr string) *Query {
	q.customConditions = append(q.customConditions, expr)
	return q
}

// Table returns the table name.
func (q *Query) Table() string { return q.table }

// Fields returns a copy of the selected fields.
func (q *Query) Fields() []string {
	return append([]string(nil), q.fields...)
}

// Conditions returns a copy of the plain predicates.
func (q *Query) Conditions() []Condition {
	return append([]Condition(nil), q.conditions...)
}

// CustomConditions returns a copy of the raw expressions.
func (q *Query) CustomConditions() []string {
	return append([]string(nil), q.customConditions...)
}

// Build renders the query.
//
//	SELECT Id, Name FROM Course WHERE Available = true AND (Start >= TODAY)
func (q *Query) Build() (string, error) {
	if q.table == "" {
		return "", ErrTableNotSet
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.table)

	where := make([]string, 0, len(q.conditions)+len(q.customConditions))
	for _, c := range q.conditions {
		where = append(where, c.Field+" "+c.Operator+" "+c.Value)
	}
	for _, expr := range q.customConditions {
		where = append(where, "("+expr+")")
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	return b.String(), nil
}

// String renders the query, or an empty string when the table is missing.
func (q *Query) String() string {
	s, err := q.Build()
	if err != nil {
		return ""
	}
	return s
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote renders s as a single quoted string literal.
func Quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

// InList renders ids as a parenthesized list of quoted literals for use
// with the IN operator.
func InList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = Quote(id)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
