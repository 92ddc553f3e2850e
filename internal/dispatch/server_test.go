package dispatch

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/config"
	"distributed-job-dispatcher/internal/models"
	"distributed-job-dispatcher/internal/profile"
	"distributed-job-dispatcher/internal/queue"
	"distributed-job-dispatcher/internal/registry"
)

func testConfig() config.Config {
	return config.Config{
		HeartbeatInterval: time.Second,
		SuspectAfter:      5 * time.Second,
		DeadAfter:         20 * time.Second,
		VisibilityTimeout: 30 * time.Second,
		SweepInterval:     time.Second,
		MaxAttempts:       3,
		DefaultCapacity:   4,
	}
}

func newTestServer() *Server {
	return New(testConfig(), nil, nil, nil, nil)
}

func beat(s *Server, workerID string, load, capacity int) []models.Assignment {
	return s.HandleHeartbeat(models.Heartbeat{
		WorkerID:    workerID,
		Timestamp:   time.Now(),
		CurrentLoad: load,
		Capacity:    capacity,
	})
}

func TestHeartbeatAssignsUpToSpareCapacity(t *testing.T) {
	s := newTestServer()
	for i := 0; i < 5; i++ {
		s.Submit("test", nil, 0, 0)
	}

	assignments := beat(s, "w1", 0, 2)
	assert.Len(t, assignments, 2)

	// Worker reports one slot busy: only one more fits.
	assignments = beat(s, "w1", 1, 2)
	assert.Len(t, assignments, 1)

	// Full worker gets nothing.
	assignments = beat(s, "w1", 2, 2)
	assert.Empty(t, assignments)

	status := s.Status()
	assert.Equal(t, 2, status.Jobs[models.StatePending])
	assert.Equal(t, 3, status.Jobs[models.StateAssigned])
}

func TestHeartbeatFromUnknownWorkerRegisters(t *testing.T) {
	s := newTestServer()
	beat(s, "fresh", 0, 1)

	status := s.Status()
	assert.Equal(t, 1, status.Workers[models.WorkerAlive])
}

func TestReportAppliesOnceAndMergesMetrics(t *testing.T) {
	s := newTestServer()
	job := s.Submit("encode", nil, 0, 0)
	assignments := beat(s, "w1", 0, 1)
	require.Len(t, assignments, 1)

	rep := models.Report{
		JobID:    job.ID,
		WorkerID: "w1",
		Outcome:  models.OutcomeCompleted,
		Result:   "done",
		Profile:  "encode:time=1.5 encode:count=1",
	}
	require.True(t, s.HandleReport(rep))

	// Duplicate delivery is a no-op: no double count in the aggregate.
	assert.False(t, s.HandleReport(rep))

	status := s.Status()
	assert.Equal(t, 1, status.Jobs[models.StateCompleted])
	require.Len(t, status.Metrics, 2)
	assert.Equal(t, "encode:count", status.Metrics[0].Path)
	assert.Equal(t, int64(1), status.Metrics[0].Count)
	assert.Equal(t, "encode:time", status.Metrics[1].Path)
	assert.Equal(t, 1.5, status.Metrics[1].Sum)

	// The released slot is assignable again.
	s.Submit("encode", nil, 0, 0)
	assert.Len(t, beat(s, "w1", 0, 1), 1)
}

func TestReportFailureIsTerminal(t *testing.T) {
	s := newTestServer()
	job := s.Submit("test", nil, 0, 0)
	require.Len(t, beat(s, "w1", 0, 1), 1)

	applied := s.HandleReport(models.Report{
		JobID:    job.ID,
		WorkerID: "w1",
		Outcome:  models.OutcomeFailed,
		Reason:   "execution fault",
	})
	require.True(t, applied)

	got, ok := s.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Equal(t, []string{job.ID}, s.DLQ(0))
}

func TestReportUnknownOutcomeIgnored(t *testing.T) {
	s := newTestServer()
	job := s.Submit("test", nil, 0, 0)
	assert.False(t, s.HandleReport(models.Report{JobID: job.ID, Outcome: "gibberish"}))
}

func TestSweepReclaimsDeadWorkersJobsOnce(t *testing.T) {
	cfg := testConfig()
	log := zap.NewNop()
	reg := registry.New(cfg.SuspectAfter, cfg.DeadAfter, cfg.DefaultCapacity, log)
	q := queue.New(cfg.MaxAttempts, log)
	s := New(cfg, reg, q, profile.NewAggregator(log), log)

	job := s.Submit("test", nil, 0, 0)
	start := time.Now()
	s.HandleHeartbeat(models.Heartbeat{WorkerID: "w1", Timestamp: start, CurrentLoad: 0, Capacity: 1})

	got, _ := s.Job(job.ID)
	require.Equal(t, models.StateAssigned, got.State)

	// Silence through suspect and dead windows.
	s.Sweep(start.Add(6 * time.Second))
	got, _ = s.Job(job.ID)
	assert.Equal(t, models.StateAssigned, got.State, "suspect workers keep their assignments")

	s.Sweep(start.Add(27 * time.Second))
	got, _ = s.Job(job.ID)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, 1, got.Attempts)

	// Another sweep does not reclaim again.
	s.Sweep(start.Add(28 * time.Second))
	got, _ = s.Job(job.ID)
	assert.Equal(t, 1, got.Attempts)

	// A live worker picks the job back up.
	assignments := s.HandleHeartbeat(models.Heartbeat{
		WorkerID: "w2", Timestamp: start.Add(29 * time.Second), Capacity: 1,
	})
	require.Len(t, assignments, 1)
	assert.Equal(t, job.ID, assignments[0].JobID)
}

func TestSweepReclaimsStaleAssignments(t *testing.T) {
	s := newTestServer()
	job := s.Submit("test", nil, 0, 0)
	start := time.Now()
	s.HandleHeartbeat(models.Heartbeat{WorkerID: "w1", Timestamp: start, Capacity: 1})

	// Keep the worker alive but silent about the job.
	s.HandleHeartbeat(models.Heartbeat{WorkerID: "w1", Timestamp: start.Add(31 * time.Second), CurrentLoad: 1, Capacity: 1})
	s.Sweep(start.Add(31 * time.Second))

	got, _ := s.Job(job.ID)
	assert.Equal(t, models.StatePending, got.State)
}

// TestNoDoubleAssignmentUnderConcurrency drives randomized concurrent
// heartbeats and reports and asserts the single-assignee invariant: at no
// point do two workers hold the same job.
func TestNoDoubleAssignmentUnderConcurrency(t *testing.T) {
	s := newTestServer()

	const jobs = 200
	const workers = 8
	for i := 0; i < jobs; i++ {
		s.Submit("test", nil, rand.Intn(3), 0)
	}

	var mu sync.Mutex
	holders := make(map[string]string) // job id -> worker holding it

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		workerID := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(len(workerID))))
			var held []models.Assignment
			for round := 0; round < 50; round++ {
				assignments := s.HandleHeartbeat(models.Heartbeat{
					WorkerID:    workerID,
					Timestamp:   time.Now(),
					CurrentLoad: len(held),
					Capacity:    4,
				})
				mu.Lock()
				for _, a := range assignments {
					if other, taken := holders[a.JobID]; taken {
						mu.Unlock()
						t.Errorf("job %s assigned to both %s and %s", a.JobID, other, workerID)
						return
					}
					holders[a.JobID] = workerID
				}
				mu.Unlock()
				held = append(held, assignments...)

				// Randomly finish some held jobs.
				for len(held) > 0 && rng.Intn(2) == 0 {
					a := held[len(held)-1]
					held = held[:len(held)-1]
					s.HandleReport(models.Report{
						JobID:    a.JobID,
						WorkerID: workerID,
						Outcome:  models.OutcomeCompleted,
					})
					mu.Lock()
					delete(holders, a.JobID)
					mu.Unlock()
				}
			}
			// Drain whatever is left.
			for _, a := range held {
				s.HandleReport(models.Report{
					JobID: a.JobID, WorkerID: workerID, Outcome: models.OutcomeCompleted,
				})
				mu.Lock()
				delete(holders, a.JobID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Sequentially drain any jobs the randomized phase left pending.
	for {
		assignments := beat(s, "drainer", 0, 4)
		if len(assignments) == 0 {
			break
		}
		for _, a := range assignments {
			s.HandleReport(models.Report{
				JobID: a.JobID, WorkerID: "drainer", Outcome: models.OutcomeCompleted,
			})
		}
	}

	status := s.Status()
	assert.Equal(t, jobs, status.Jobs[models.StateCompleted])
	assert.Zero(t, status.Jobs[models.StateAssigned])
}
