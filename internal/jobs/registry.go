package jobs

import (
	"sync"
	"time"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
)

type entry struct {
	progress  domain.JobProgress
	expiresAt time.Time // zero while the job is live
}

// Registry tracks job progress snapshots for polling. Every update replaces
// the stored value whole, so readers never observe a partially updated job.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Put replaces the snapshot stored for the job, keeping any eviction
// deadline already set.
func (r *Registry) Put(p domain.JobProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[p.JobID]
	e.progress = p
	r.entries[p.JobID] = e
}

// Get returns a copy of the job's snapshot.
func (r *Registry) Get(jobID string) (domain.JobProgress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[jobID]
	return e.progress, ok
}

// ExpireAfter marks the job's snapshot for removal once ttl elapses.
func (r *Registry) ExpireAfter(jobID string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[jobID]
	if !ok {
		return
	}
	e.expiresAt = time.Now().Add(ttl)
	r.entries[jobID] = e
}

// Sweep removes every snapshot whose deadline passed before now and reports
// how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if !e.expiresAt.IsZero() && e.expiresAt.Before(now) {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len reports how many snapshots are currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
