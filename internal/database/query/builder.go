// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package query builds parameterized SQL WHERE clauses.
//
//	wb := query.NewWhereBuilder()
//	wb.AddIn("o.status", []string{"delivered", "completed"})
//	wb.AddEqual("p.category", category)
//	where, args := wb.BuildWithPrefix()
//	// WHERE o.status IN (?, ?) AND p.category = ?
//
// Empty filters add nothing, so optional request fields can be passed
// straight through.
package query

import (
	"strings"
	"time"
)

// WhereBuilder accumulates AND-ed conditions and their arguments.
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder returns an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEqual adds column = value unless value is empty.
func (wb *WhereBuilder) AddEqual(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// AddIn adds column IN (...) unless values is empty.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wb.AddClause(column+" IN ("+Placeholders(len(values))+")", args...)
}

// AddSince adds column >= since unless since is zero.
func (wb *WhereBuilder) AddSince(column string, since time.Time) *WhereBuilder {
	if since.IsZero() {
		return wb
	}
	return wb.AddClause(column+" >= ?", since)
}

// Build returns the conditions joined with AND, without the WHERE keyword.
func (wb *WhereBuilder) Build() (string, []any) {
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns "WHERE ..." or "" when there are no conditions.
func (wb *WhereBuilder) BuildWithPrefix() (string, []any) {
	if wb.IsEmpty() {
		return "", nil
	}
	clause, args := wb.Build()
	return "WHERE " + clause, args
}

// Count returns the number of conditions.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty reports whether no conditions were added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}

// Placeholders returns n comma-separated "?" markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
