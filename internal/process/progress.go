package process

import (
	"sync"
	"time"
)

// Status is a task's lifecycle state. Transitions only move forward:
// Pending → Processing → Completed or Failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress is a read-only snapshot for external progress polls.
type Progress struct {
	ProcessedRows int       `json:"processed_rows"`
	TotalRows     int       `json:"total_rows"`
	Status        Status    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tracker is the only state mutated concurrently by batch workers.
// All mutation happens under the lock; readers get value snapshots.
type Tracker struct {
	mu sync.Mutex
	p  Progress
}

func NewTracker(totalRows int) *Tracker {
	return &Tracker{p: Progress{
		TotalRows: totalRows,
		Status:    StatusPending,
		UpdatedAt: time.Now(),
	}}
}

func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.Status == StatusPending {
		t.p.Status = StatusProcessing
		t.p.UpdatedAt = time.Now()
	}
}

// RowDone bumps the monotonic counter, capped at the total.
func (t *Tracker) RowDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.ProcessedRows < t.p.TotalRows {
		t.p.ProcessedRows++
	}
	t.p.UpdatedAt = time.Now()
}

func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.Status == StatusProcessing || t.p.Status == StatusPending {
		t.p.Status = StatusCompleted
		t.p.UpdatedAt = time.Now()
	}
}

func (t *Tracker) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.Status == StatusProcessing || t.p.Status == StatusPending {
		t.p.Status = StatusFailed
		t.p.UpdatedAt = time.Now()
	}
}

func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}
