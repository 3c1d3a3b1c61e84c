// Package querylog keeps a bounded in-process log of query executions
// for the operator endpoints. Durable history lives in the store; this
// ring answers "what ran recently" without a round trip.
package querylog

import (
	"sync"

	"github.com/meridianmed/insight-engine/pkg/models"
)

// DefaultCapacity bounds the ring when the configured capacity is zero.
const DefaultCapacity = 1000

// Ring holds the most recent execution records, newest first on read.
type Ring struct {
	mu       sync.Mutex
	records  []models.QueryExecutionRecord
	capacity int
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Append records an execution, evicting the oldest entry at capacity.
func (r *Ring) Append(rec models.QueryExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == r.capacity {
		copy(r.records, r.records[1:])
		r.records[len(r.records)-1] = rec
		return
	}
	r.records = append(r.records, rec)
}

// List returns records newest first, optionally filtered by mode, with
// offset/limit paging applied after the filter. limit <= 0 means no cap.
func (r *Ring) List(offset, limit int, mode models.QueryMode) []models.QueryExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.QueryExecutionRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		if mode != "" && r.records[i].Mode != mode {
			continue
		}
		out = append(out, r.records[i])
	}

	if offset >= len(out) {
		return []models.QueryExecutionRecord{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Clear drops every record.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

// Len returns the number of records held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
