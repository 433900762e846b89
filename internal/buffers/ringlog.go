package buffers

import (
	"sync"
	"time"
)

// Entry is a single ring log record. The "t" key carries the ingestion
// timestamp in Unix seconds; the remaining keys vary by log.
type Entry map[string]any

// RingLog is a fixed-capacity circular log of recent entries, used purely
// for the debug endpoints. Appends from concurrent sessions are serialized
// by a mutex; eviction is strict oldest-inserted-first.
type RingLog struct {
	mu       sync.Mutex
	entries  []Entry
	head     int // index of the oldest entry
	size     int
	capacity int
}

// NewRingLog creates a ring log with the given capacity
func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingLog{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, evicting the oldest one at capacity
func (r *RingLog) Append(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % r.capacity
	r.entries[tail] = entry
	if r.size < r.capacity {
		r.size++
	} else {
		r.head = (r.head + 1) % r.capacity
	}
}

// Latest returns up to limit of the most recent entries in insertion order
// (most recent last). A non-positive limit yields an empty slice.
func (r *RingLog) Latest(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		return []Entry{}
	}
	if limit > r.size {
		limit = r.size
	}

	out := make([]Entry, 0, limit)
	start := r.size - limit
	for i := start; i < r.size; i++ {
		out = append(out, r.entries[(r.head+i)%r.capacity])
	}
	return out
}

// Len returns the number of entries currently held
func (r *RingLog) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed capacity
func (r *RingLog) Capacity() int {
	return r.capacity
}

// NowS returns the current wall-clock time in Unix seconds, the timestamp
// format used by the debug endpoints.
func NowS() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Logs bundles the four process-wide ring logs observing both relay
// directions. They are shared by all sessions.
type Logs struct {
	ClientChunks   *RingLog // audio chunks received from clients
	UpstreamChunks *RingLog // audio chunks forwarded upstream
	UpstreamText   *RingLog // transcript payloads received from upstream
	ClientText     *RingLog // transcript payloads sent to clients
}

// NewLogs creates the four ring logs, each with the given capacity
func NewLogs(capacity int) *Logs {
	return &Logs{
		ClientChunks:   NewRingLog(capacity),
		UpstreamChunks: NewRingLog(capacity),
		UpstreamText:   NewRingLog(capacity),
		ClientText:     NewRingLog(capacity),
	}
}
