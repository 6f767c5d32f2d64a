// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package training

import (
	"sync"
	"time"
)

// LogEntry is one line of a run's log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// logBuffer keeps the most recent lines of a run in a ring.
type logBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func newLogBuffer(size int) *logBuffer {
	if size <= 0 {
		size = DefaultConfig().LogLines
	}
	return &logBuffer{entries: make([]LogEntry, size)}
}

func (b *logBuffer) add(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
}

// lines returns the buffered entries, oldest first.
func (b *logBuffer) lines() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}
