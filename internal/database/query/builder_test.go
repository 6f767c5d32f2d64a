// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package query

import (
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	wb := NewWhereBuilder()
	if !wb.IsEmpty() {
		t.Error("new builder is not empty")
	}
	where, args := wb.BuildWithPrefix()
	if where != "" || args != nil {
		t.Errorf("BuildWithPrefix() = %q, %v; want empty", where, args)
	}
}

func TestWhereBuilder_SkipsEmptyFilters(t *testing.T) {
	wb := NewWhereBuilder().
		AddEqual("category", "").
		AddIn("status", nil).
		AddSince("created_at", time.Time{})
	if wb.Count() != 0 {
		t.Errorf("Count() = %d, want 0", wb.Count())
	}
}

func TestWhereBuilder_Build(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wb := NewWhereBuilder().
		AddIn("o.status", []string{"delivered", "completed"}).
		AddEqual("p.category", "garden").
		AddSince("o.created_at", since).
		AddClause("oi.quantity > ?", 0)

	where, args := wb.BuildWithPrefix()
	want := "WHERE o.status IN (?, ?) AND p.category = ? AND o.created_at >= ? AND oi.quantity > ?"
	if where != want {
		t.Errorf("where = %q\nwant    %q", where, want)
	}
	if len(args) != 5 || args[0] != "delivered" || args[2] != "garden" || args[3] != since || args[4] != 0 {
		t.Errorf("args = %v", args)
	}
}

func TestPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := Placeholders(n); got != want {
			t.Errorf("Placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}
