package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an operation as seen by pollers.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// OperationRecord is a point-in-time copy of an operation's progress.
type OperationRecord struct {
	OperationID      string    `json:"operationId"`
	Direction        Direction `json:"direction"`
	Source           string    `json:"source"`
	Target           string    `json:"target"`
	Status           Status    `json:"status"`
	Success          bool      `json:"success"`
	RecordsProcessed int64     `json:"recordsProcessed"`
	TotalRecords     int64     `json:"totalRecords"`
	EstimatedTotal   int64     `json:"estimatedTotal"`
	RecordsPerSecond float64   `json:"recordsPerSecond"`
	PercentComplete  float64   `json:"percentComplete"`
	Message          string    `json:"message"`
	StartTime        int64     `json:"startTime"`
	ExecutionTimeMs  int64     `json:"executionTimeMs"`
}

// expiresAt is when a terminal record becomes eligible for removal.
func (r OperationRecord) expiresAt(retention time.Duration) time.Time {
	return time.UnixMilli(r.StartTime + r.ExecutionTimeMs).Add(retention)
}

// Operation tracks one transfer. A single orchestrator goroutine mutates it
// while any number of pollers read snapshots.
type Operation struct {
	clock Clock

	mu        sync.RWMutex
	rec       OperationRecord
	startedAt time.Time
}

// NewOperation creates a running operation with a fresh id.
func NewOperation(clock Clock, direction Direction, source, target string) *Operation {
	if clock == nil {
		clock = SystemClock
	}
	now := clock.Now()

	return &Operation{
		clock:     clock,
		startedAt: now,
		rec: OperationRecord{
			OperationID: uuid.New().String(),
			Direction:   direction,
			Source:      source,
			Target:      target,
			Status:      StatusRunning,
			Message:     "Operation started",
			StartTime:   now.UnixMilli(),
		},
	}
}

// ID returns the immutable operation id.
func (o *Operation) ID() string {
	return o.rec.OperationID
}

// SetTotal records the estimated row count. Non-positive totals are ignored.
func (o *Operation) SetTotal(total int64) {
	if total <= 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rec.Status.Terminal() {
		return
	}
	o.rec.TotalRecords = total
	o.rec.EstimatedTotal = total
	o.recompute(o.clock.Now())
}

// RecordBatch folds n committed rows into the running count.
func (o *Operation) RecordBatch(n int) {
	if n <= 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rec.Status.Terminal() {
		return
	}
	o.rec.RecordsProcessed += int64(n)
	o.recompute(o.clock.Now())
}

// SetMessage updates the human-readable progress line while running.
func (o *Operation) SetMessage(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.rec.Status.Terminal() {
		o.rec.Message = msg
	}
}

// Finish moves the operation to a terminal state. Only the first call has
// any effect. It reports whether this call finished the operation.
func (o *Operation) Finish(success bool, message string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rec.Status.Terminal() {
		return false
	}

	now := o.clock.Now()
	o.rec.Success = success
	o.rec.Message = message
	if success {
		o.rec.Status = StatusCompleted
	} else {
		o.rec.Status = StatusError
	}
	o.rec.ExecutionTimeMs = now.Sub(o.startedAt).Milliseconds()
	o.recompute(now)
	return true
}

// Snapshot returns a consistent copy of the record. While running, the
// rate and execution time reflect the current clock.
func (o *Operation) Snapshot() OperationRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rec := o.rec
	if !rec.Status.Terminal() {
		now := o.clock.Now()
		rec.ExecutionTimeMs = now.Sub(o.startedAt).Milliseconds()
		rec.RecordsPerSecond = rate(rec.RecordsProcessed, now.Sub(o.startedAt))
	}
	return rec
}

// recompute refreshes derived fields. Callers hold mu.
func (o *Operation) recompute(now time.Time) {
	o.rec.RecordsPerSecond = rate(o.rec.RecordsProcessed, now.Sub(o.startedAt))
	if o.rec.TotalRecords > 0 {
		pct := float64(o.rec.RecordsProcessed) * 100 / float64(o.rec.TotalRecords)
		if pct > 100 {
			pct = 100
		}
		o.rec.PercentComplete = pct
	}
}

// rate divides by whole elapsed seconds with a floor of one.
func rate(processed int64, elapsed time.Duration) float64 {
	secs := int64(elapsed / time.Second)
	if secs < 1 {
		secs = 1
	}
	return float64(processed) / float64(secs)
}
