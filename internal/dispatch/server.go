// Package dispatch composes the worker registry, job queue, and metrics
// aggregator into the coordination engine: it assigns jobs on heartbeats,
// applies completion and failure reports exactly once, and sweeps out stale
// assignments and silent workers on a fixed schedule.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/config"
	"distributed-job-dispatcher/internal/models"
	"distributed-job-dispatcher/internal/profile"
	"distributed-job-dispatcher/internal/queue"
	"distributed-job-dispatcher/internal/registry"
	"distributed-job-dispatcher/internal/telemetry"
)

// Server is a single dispatcher instance. All state is held by the owned
// components passed to New, so independent instances can coexist in tests.
type Server struct {
	cfg      config.Config
	registry *registry.Registry
	queue    *queue.Queue
	agg      *profile.Aggregator
	log      *zap.Logger
}

// New wires a dispatcher from its components. Nil components are built from
// the config so callers can inject only what they need to observe.
func New(cfg config.Config, reg *registry.Registry, q *queue.Queue, agg *profile.Aggregator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = registry.New(cfg.SuspectAfter, cfg.DeadAfter, cfg.DefaultCapacity, log)
	}
	if q == nil {
		q = queue.New(cfg.MaxAttempts, log)
	}
	if agg == nil {
		agg = profile.NewAggregator(log)
	}
	return &Server{cfg: cfg, registry: reg, queue: q, agg: agg, log: log}
}

// Submit creates a job from an external submission and enqueues it.
func (s *Server) Submit(jobType string, payload map[string]any, priority, maxAttempts int) models.Job {
	job := &models.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Priority:    priority,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	s.queue.Enqueue(job)
	telemetry.SubmitCounter.Inc()
	s.log.Info("job submitted", zap.String("job", job.ID), zap.String("type", jobType),
		zap.Int("priority", priority))
	return *job
}

// HandleHeartbeat updates the registry (unknown workers register implicitly)
// and assigns pending jobs up to the worker's spare capacity. The returned
// assignments ride back to the worker in the heartbeat response.
func (s *Server) HandleHeartbeat(hb models.Heartbeat) []models.Assignment {
	telemetry.HeartbeatCounter.Inc()
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}
	s.registry.Heartbeat(hb)

	var assignments []models.Assignment
	for {
		// IncLoad before dequeue so capacity is never oversubscribed; the
		// slot is released when nothing is pending.
		if !s.registry.IncLoad(hb.WorkerID) {
			break
		}
		job := s.queue.DequeueNext(hb.WorkerID, time.Now())
		if job == nil {
			s.registry.DecLoad(hb.WorkerID)
			break
		}
		assignments = append(assignments, models.Assignment{
			JobID:   job.ID,
			Type:    job.Type,
			Payload: job.Payload,
		})
		s.log.Info("job assigned", zap.String("job", job.ID), zap.String("worker", hb.WorkerID))
	}
	return assignments
}

// HandleReport applies a completion or failure report. A report for an
// already-terminal job is a no-op: load, metrics, and counters are touched
// only when the state transition actually happens, which makes duplicate
// delivery safe.
func (s *Server) HandleReport(rep models.Report) bool {
	var assignee string
	var applied bool
	switch rep.Outcome {
	case models.OutcomeCompleted:
		assignee, applied = s.queue.MarkCompleted(rep.JobID, rep.Result)
		if applied {
			telemetry.CompletedCounter.Inc()
		}
	case models.OutcomeFailed:
		assignee, applied = s.queue.MarkFailed(rep.JobID, rep.Reason)
		if applied {
			telemetry.FailedCounter.Inc()
		}
	default:
		s.log.Warn("report with unknown outcome ignored",
			zap.String("job", rep.JobID), zap.String("outcome", rep.Outcome))
		return false
	}
	if !applied {
		s.log.Debug("duplicate report ignored", zap.String("job", rep.JobID),
			zap.String("worker", rep.WorkerID))
		return false
	}
	if assignee != "" && assignee == rep.WorkerID {
		s.registry.DecLoad(assignee)
	}
	if rep.Profile != "" {
		s.agg.Ingest(rep.Profile)
	}
	s.log.Info("report applied", zap.String("job", rep.JobID),
		zap.String("worker", rep.WorkerID), zap.String("outcome", rep.Outcome))
	return true
}

// Sweep runs one round of maintenance as of now: worker timeout transitions,
// reclaim of dead workers' assignments, and reclaim of stale assignments.
// Reassignment happens naturally on the next eligible heartbeat.
func (s *Server) Sweep(now time.Time) {
	for _, workerID := range s.registry.Sweep(now) {
		reclaimed := s.queue.ReclaimWorker(workerID)
		telemetry.ReclaimedCounter.Add(float64(len(reclaimed)))
	}
	for _, r := range s.queue.ReclaimStale(now, s.cfg.VisibilityTimeout) {
		s.registry.DecLoad(r.Worker)
		telemetry.ReclaimedCounter.Inc()
	}

	jobs := s.queue.Counts()
	telemetry.PendingGauge.Set(float64(jobs[models.StatePending]))
	telemetry.AssignedGauge.Set(float64(jobs[models.StateAssigned]))
	telemetry.AliveWorkersGauge.Set(float64(s.registry.Counts()[models.WorkerAlive]))
}

// Run executes the periodic sweep until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// StatusView is the read-only state exposed to the status collaborator.
type StatusView struct {
	Jobs    map[string]int      `json:"jobs"`
	Workers map[string]int      `json:"workers"`
	Metrics []profile.Aggregate `json:"metrics"`
}

// Status snapshots job and worker counts plus the metric aggregate.
func (s *Server) Status() StatusView {
	return StatusView{
		Jobs:    s.queue.Counts(),
		Workers: s.registry.Counts(),
		Metrics: s.agg.Snapshot(),
	}
}

// Job exposes a single job's current state for the status collaborator.
func (s *Server) Job(id string) (models.Job, bool) {
	return s.queue.Get(id)
}

// DLQ lists terminally failed job ids.
func (s *Server) DLQ(limit int) []string {
	return s.queue.DLQ(limit)
}
