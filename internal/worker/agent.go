// Package worker implements the agent that runs on each remote worker
// process: it heartbeats the dispatcher on a fixed interval, executes the
// assignments delivered in heartbeat responses, and reports results with
// locally collected metrics.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/config"
	"distributed-job-dispatcher/internal/models"
	"distributed-job-dispatcher/internal/profile"
)

// Handler executes a job for a given type.
type Handler func(ctx context.Context, job models.Job) error

// Agent drives the worker loop. Heartbeats run on their own schedule so a
// long-running job never starves liveness reporting.
type Agent struct {
	cfg            config.Config
	client         *http.Client
	handlers       map[string]Handler
	defaultHandler Handler
	workerID       string
	capacity       int
	load           atomic.Int64
	log            *zap.Logger
}

// NewAgent creates an agent. An empty worker id falls back to the hostname,
// then the pid.
func NewAgent(cfg config.Config, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		if hostname, _ := os.Hostname(); hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}
	a := &Agent{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		handlers: make(map[string]Handler),
		workerID: workerID,
		capacity: cfg.WorkerCapacity,
		log:      log.With(zap.String("worker", workerID)),
	}
	a.defaultHandler = a.handleDefault
	return a
}

// RegisterHandler binds a handler to a job type.
func (a *Agent) RegisterHandler(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	a.handlers[jobType] = handler
}

// Run heartbeats until context cancellation, launching an execution
// goroutine per assignment received.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	a.log.Info("agent started", zap.String("server", a.cfg.ServerURL),
		zap.Int("capacity", a.capacity))
	for {
		a.beat(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// beat sends one heartbeat and starts any assignments it brings back.
func (a *Agent) beat(ctx context.Context) {
	hb := models.Heartbeat{
		WorkerID:    a.workerID,
		Timestamp:   time.Now(),
		CurrentLoad: int(a.load.Load()),
		Capacity:    a.capacity,
	}
	var resp models.HeartbeatResponse
	if err := a.postJSON(ctx, "/heartbeat", hb, &resp); err != nil {
		a.log.Warn("heartbeat failed", zap.Error(err))
		return
	}
	for _, assignment := range resp.Assignments {
		a.load.Add(1)
		go a.execute(ctx, assignment)
	}
}

// execute runs one assignment and reports the outcome. The report is
// retried with backoff; a completed result is never discarded while the
// agent is running.
func (a *Agent) execute(ctx context.Context, assignment models.Assignment) {
	defer a.load.Add(-1)

	job := models.Job{
		ID:      assignment.JobID,
		Type:    assignment.Type,
		Payload: assignment.Payload,
	}
	prof := profile.NewProfile()
	start := time.Now()
	err := a.runJob(ctx, job)
	prof.MarkDuration(job.Type+":time", time.Since(start))
	prof.Mark(job.Type+":count", 1)

	rep := models.Report{
		JobID:    job.ID,
		WorkerID: a.workerID,
		Profile:  prof.String(),
	}
	if err != nil {
		rep.Outcome = models.OutcomeFailed
		rep.Reason = err.Error()
		a.log.Warn("job failed", zap.String("job", job.ID), zap.Error(err))
	} else {
		rep.Outcome = models.OutcomeCompleted
		a.log.Info("job completed", zap.String("job", job.ID))
	}
	a.report(ctx, rep)
}

// report delivers a report, retrying with exponential backoff and jitter
// until it lands or the context is cancelled.
func (a *Agent) report(ctx context.Context, rep models.Report) {
	for attempt := 1; ; attempt++ {
		var ack map[string]bool
		err := a.postJSON(ctx, "/report", rep, &ack)
		if err == nil {
			return
		}
		wait := backoffWithJitter(a.cfg.BackoffInitial, a.cfg.BackoffMax, attempt)
		a.log.Warn("report delivery failed, retrying", zap.String("job", rep.JobID),
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			a.log.Error("report abandoned on shutdown", zap.String("job", rep.JobID))
			return
		case <-time.After(wait):
		}
	}
}

// runJob executes the job payload through the handler for its type.
func (a *Agent) runJob(ctx context.Context, job models.Job) error {
	handler, ok := a.handlers[job.Type]
	if !ok {
		if a.defaultHandler == nil {
			return fmt.Errorf("no handler registered for type %q", job.Type)
		}
		handler = a.defaultHandler
	}
	return handler(ctx, job)
}

func (a *Agent) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.ServerURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}

// handleDefault simulates work for unregistered job types: payload
// {"should_fail": true} fails, duration_ms sleeps.
func (a *Agent) handleDefault(ctx context.Context, job models.Job) error {
	if val, ok := job.Payload["should_fail"].(bool); ok && val {
		return errors.New("simulated failure requested by payload.should_fail")
	}
	if ms, ok := asInt(job.Payload["duration_ms"]); ok && ms > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
	}
	return nil
}
