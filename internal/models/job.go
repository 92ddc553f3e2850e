package models

import (
	"time"
)

// JobState enumerates the job lifecycle.
const (
	StatePending   = "pending"
	StateAssigned  = "assigned"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Job is a unit of work with an opaque payload. The queue owns a job
// exclusively until it reaches a terminal state.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Priority    int            `json:"priority"`
	Payload     map[string]any `json:"payload"`
	State       string         `json:"state"`
	Worker      string         `json:"worker,omitempty"`
	AssignedAt  time.Time      `json:"assigned_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Result      string         `json:"result,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// WorkerState enumerates worker liveness as seen by the registry.
const (
	WorkerUnknown = "unknown"
	WorkerAlive   = "alive"
	WorkerSuspect = "suspect"
	WorkerDead    = "dead"
)

// WorkerHandle is the registry's view of a remote worker. It is mutated
// only by heartbeat and assignment events.
type WorkerHandle struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	State         string    `json:"state"`
	Capacity      int       `json:"capacity"`
	Load          int       `json:"load"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Spare returns the number of additional jobs the worker can accept.
func (w *WorkerHandle) Spare() int {
	if w.Load >= w.Capacity {
		return 0
	}
	return w.Capacity - w.Load
}
