// Package dedup guarantees that a payment attempt produces at most one order
// by handing out exclusive, time-bounded claims on attempt identifiers.
package dedup

import (
	"sync"
	"time"
)

// Registry is a concurrency-safe set of claimed keys. One Registry is shared by
// the whole process; call sites pair it with their own local Registry through a
// Deduplicator.
type Registry struct {
	mu      sync.Mutex
	claimed map[string]struct{}
	timers  map[string]*time.Timer
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{
		claimed: make(map[string]struct{}),
		timers:  make(map[string]*time.Timer),
	}
}

// Claim marks key as claimed. It returns false when the key is already held or
// the registry has been closed.
func (r *Registry) Claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, held := r.claimed[key]; held {
		return false
	}
	r.claimed[key] = struct{}{}
	return true
}

// Release drops the claim on key and cancels any release scheduled for it.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(key)
}

func (r *Registry) releaseLocked(key string) {
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
	delete(r.claimed, key)
}

// ReleaseAfter schedules the release of key once grace has elapsed. A grace of
// zero or less releases immediately.
func (r *Registry) ReleaseAfter(key string, grace time.Duration) {
	if grace <= 0 {
		r.Release(key)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.claimed[key]; !held {
		return
	}
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// a newer schedule for the same key replaced this timer
		if r.timers[key] != timer {
			return
		}
		delete(r.timers, key)
		delete(r.claimed, key)
	})
	r.timers[key] = timer
}

// Held reports whether key is currently claimed.
func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.claimed[key]
	return held
}

// Len returns the number of keys currently claimed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claimed)
}

// Close stops every pending release timer, drops all claims and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
	r.claimed = make(map[string]struct{})
	r.closed = true
}

// Deduplicator checks both the process-wide registry and a registry local to
// one call site before granting a claim.
type Deduplicator struct {
	global *Registry
	local  *Registry
}

// New pairs the shared process registry with a fresh local one.
func New(global *Registry) *Deduplicator {
	return &Deduplicator{global: global, local: NewRegistry()}
}

// TryClaim returns true when the caller now owns attemptID in both scopes.
func (d *Deduplicator) TryClaim(attemptID string) bool {
	if !d.local.Claim(attemptID) {
		return false
	}
	if !d.global.Claim(attemptID) {
		d.local.Release(attemptID)
		return false
	}
	return true
}

// Release drops the claim in both scopes immediately.
func (d *Deduplicator) Release(attemptID string) {
	d.global.Release(attemptID)
	d.local.Release(attemptID)
}

// ReleaseAfter drops the claim in both scopes once grace has elapsed.
func (d *Deduplicator) ReleaseAfter(attemptID string, grace time.Duration) {
	d.global.ReleaseAfter(attemptID, grace)
	d.local.ReleaseAfter(attemptID, grace)
}

// Close stops the local registry's timers. The global registry is owned by
// whoever created it.
func (d *Deduplicator) Close() {
	d.local.Close()
}
