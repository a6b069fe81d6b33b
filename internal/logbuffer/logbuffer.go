// Package logbuffer keeps the most recent structured log lines in memory so
// they can be served over HTTP.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one decoded zerolog line
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	AlertID   string    `json:"alert_id,omitempty"`
	Raw       string    `json:"raw"`
}

// Buffer is a fixed-size ring of log entries. It implements io.Writer so it
// can be teed next to the primary zerolog output.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
	now     func() time.Time
}

// New creates a buffer holding at most size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		now:     time.Now,
	}
}

// Write stores one log line. zerolog issues exactly one Write per event.
func (b *Buffer) Write(p []byte) (int, error) {
	entry := decode(p, b.now)

	b.mu.Lock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
	b.mu.Unlock()

	return len(p), nil
}

// Entries returns buffered entries oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.count)
	start := 0
	if b.count == len(b.entries) {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Recent returns at most n of the newest entries at or above minLevel.
// An empty minLevel keeps every entry.
func (b *Buffer) Recent(n int, minLevel string) []Entry {
	all := b.Entries()
	floor := levelRank(minLevel)

	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if levelRank(e.Level) >= floor {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

func decode(p []byte, now func() time.Time) Entry {
	raw := strings.TrimRight(string(p), "\n")
	entry := Entry{Time: now(), Level: "info", Message: raw, Raw: raw}

	var fields struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Message   string `json:"message"`
		Component string `json:"component"`
		AlertID   string `json:"alert_id"`
	}
	// console-formatted lines are kept verbatim
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return entry
	}

	if fields.Level != "" {
		entry.Level = fields.Level
	}
	entry.Message = fields.Message
	entry.Component = fields.Component
	entry.AlertID = fields.AlertID
	if t, err := time.Parse(time.RFC3339, fields.Time); err == nil {
		entry.Time = t
	}
	return entry
}

var levels = map[string]int{
	"trace": 0,
	"debug": 1,
	"info":  2,
	"warn":  3,
	"error": 4,
	"fatal": 5,
	"panic": 6,
}

func levelRank(level string) int {
	if level == "" {
		return 0
	}
	if r, ok := levels[strings.ToLower(level)]; ok {
		return r
	}
	return levels["info"]
}
