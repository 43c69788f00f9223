package core

import (
	"sort"
	"sync"
	"time"
)

// DefaultRetention is how long a finished operation stays pollable.
const DefaultRetention = time.Hour

// Registry maps operation ids to live operations. Finished operations are
// removed lazily, on the next Put or Get after their retention has passed.
type Registry struct {
	retention time.Duration
	clock     Clock

	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry creates an empty registry.
func NewRegistry(retention time.Duration, clock Clock) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Registry{
		retention: retention,
		clock:     clock,
		ops:       make(map[string]*Operation),
	}
}

// Put registers op, or refreshes its entry if already present.
func (r *Registry) Put(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.ID()]; !exists {
		r.sweepLocked()
	}
	r.ops[op.ID()] = op
}

// Get returns a snapshot of the operation with the given id.
// Unknown and expired ids both yield ErrOperationNotFound.
func (r *Registry) Get(id string) (OperationRecord, error) {
	r.sweepExpired()

	r.mu.RLock()
	op, ok := r.ops[id]
	r.mu.RUnlock()

	if !ok {
		return OperationRecord{}, ErrOperationNotFound
	}
	return op.Snapshot(), nil
}

// List returns snapshots of every retained operation, newest first.
func (r *Registry) List() []OperationRecord {
	r.sweepExpired()

	r.mu.RLock()
	result := make([]OperationRecord, 0, len(r.ops))
	for _, op := range r.ops {
		result = append(result, op.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime > result[j].StartTime
		}
		return result[i].OperationID < result[j].OperationID
	})
	return result
}

// Len returns the number of retained operations, including expired ones
// that have not been swept yet.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

func (r *Registry) sweepExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
}

func (r *Registry) sweepLocked() {
	now := r.clock.Now()
	for id, op := range r.ops {
		rec := op.Snapshot()
		if rec.Status.Terminal() && now.After(rec.expiresAt(r.retention)) {
			delete(r.ops, id)
		}
	}
}
