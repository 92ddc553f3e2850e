package models

import "time"

// Report outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Heartbeat is the periodic liveness signal a worker sends to the
// dispatcher. An unknown worker id registers implicitly.
type Heartbeat struct {
	WorkerID    string    `json:"worker_id"`
	Address     string    `json:"address"`
	Timestamp   time.Time `json:"timestamp"`
	CurrentLoad int       `json:"current_load"`
	Capacity    int       `json:"capacity"`
}

// Assignment hands a job to a worker. Delivered in the heartbeat response.
type Assignment struct {
	JobID   string         `json:"job_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Report is a worker's completion or failure notice for one job.
// Profile carries locally collected metrics as a single line in the
// `path=value` protocol. Duplicate reports for a terminal job are ignored.
type Report struct {
	JobID    string `json:"job_id"`
	WorkerID string `json:"worker_id"`
	Outcome  string `json:"outcome"`
	Result   string `json:"result,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Profile  string `json:"profile,omitempty"`
}

// HeartbeatResponse carries any assignments made while handling the beat.
type HeartbeatResponse struct {
	Assignments []Assignment `json:"assignments"`
}
