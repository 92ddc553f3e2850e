// Package queue holds pending and assigned jobs with FIFO ordering per
// priority tier. The queue is the single owner of job state: every
// transition happens under its lock, which is what guarantees a job is
// never Assigned to two workers at once.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/models"
)

// Queue is an in-memory job queue. Construct with New; the zero value is not
// usable.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	pending pendingHeap
	seq     uint64

	maxAttempts int
	dlq         []string
	log         *zap.Logger
}

// New builds an empty queue. maxAttempts caps how many times a stale job is
// reassigned before it goes terminal Failed.
func New(maxAttempts int, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		jobs:        make(map[string]*models.Job),
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Enqueue adds a job in Pending state. A zero MaxAttempts inherits the
// queue's cap.
func (q *Queue) Enqueue(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.maxAttempts
	}
	job.State = models.StatePending
	job.Worker = ""
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	q.jobs[job.ID] = job
	q.push(job.ID, job.Priority)
}

// push appends a pending entry; callers hold the lock.
func (q *Queue) push(id string, priority int) {
	q.seq++
	heap.Push(&q.pending, pendingItem{id: id, priority: priority, seq: q.seq})
}

// DequeueNext atomically hands the next Pending job to workerID, moving it
// to Assigned with an assignment timestamp. Returns nil when nothing is
// pending. Higher priority dequeues first, FIFO within a tier.
func (q *Queue) DequeueNext(workerID string, now time.Time) *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending.Len() > 0 {
		item := heap.Pop(&q.pending).(pendingItem)
		job, ok := q.jobs[item.id]
		if !ok || job.State != models.StatePending {
			// Stale heap entry from a reclaim or terminal transition.
			continue
		}
		job.State = models.StateAssigned
		job.Worker = workerID
		job.AssignedAt = now
		copied := *job
		return &copied
	}
	return nil
}

// MarkCompleted records a successful result. It returns the worker that
// held the assignment and whether the transition applied; a job already in
// a terminal state is left untouched (duplicate reports are no-ops).
func (q *Queue) MarkCompleted(id, result string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Terminal() {
		return "", false
	}
	worker := job.Worker
	job.State = models.StateCompleted
	job.Result = result
	job.Worker = ""
	return worker, true
}

// MarkFailed records a terminal failure with a reason. Same idempotence
// contract as MarkCompleted. Failed jobs are listed on the dead-letter list
// for inspection.
func (q *Queue) MarkFailed(id, reason string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Terminal() {
		return "", false
	}
	worker := job.Worker
	job.State = models.StateFailed
	job.LastError = &reason
	job.Worker = ""
	q.dlq = append(q.dlq, id)
	return worker, true
}

// Reclaimed pairs a re-pended job with the worker the assignment was taken
// back from, so the caller can release that worker's load slot.
type Reclaimed struct {
	Job    models.Job
	Worker string
}

// ReclaimStale scans Assigned jobs whose assignment is older than timeout,
// increments their attempt count, and returns them to Pending. A job at its
// attempt cap transitions to terminal Failed instead and is never
// re-enqueued. Only re-pended jobs are returned.
func (q *Queue) ReclaimStale(now time.Time, timeout time.Duration) []Reclaimed {
	q.mu.Lock()
	defer q.mu.Unlock()
	var reclaimed []Reclaimed
	for _, job := range q.jobs {
		if job.State != models.StateAssigned || now.Sub(job.AssignedAt) <= timeout {
			continue
		}
		worker := q.reclaimLocked(job, "assignment timed out")
		if job.State == models.StatePending {
			reclaimed = append(reclaimed, Reclaimed{Job: *job, Worker: worker})
		}
	}
	return reclaimed
}

// ReclaimWorker returns every job Assigned to workerID back to Pending,
// regardless of age. Used when the registry declares a worker dead.
func (q *Queue) ReclaimWorker(workerID string) []Reclaimed {
	q.mu.Lock()
	defer q.mu.Unlock()
	var reclaimed []Reclaimed
	for _, job := range q.jobs {
		if job.State != models.StateAssigned || job.Worker != workerID {
			continue
		}
		worker := q.reclaimLocked(job, "worker declared dead")
		if job.State == models.StatePending {
			reclaimed = append(reclaimed, Reclaimed{Job: *job, Worker: worker})
		}
	}
	return reclaimed
}

// reclaimLocked moves one assigned job back to Pending or, at the attempt
// cap, to Failed, returning the prior assignee. Callers hold the lock.
func (q *Queue) reclaimLocked(job *models.Job, cause string) string {
	job.Attempts++
	worker := job.Worker
	job.Worker = ""
	if job.Attempts >= job.MaxAttempts {
		reason := cause + ": retry attempts exhausted"
		job.State = models.StateFailed
		job.LastError = &reason
		q.dlq = append(q.dlq, job.ID)
		q.log.Warn("job dead-lettered", zap.String("job", job.ID),
			zap.String("worker", worker), zap.Int("attempts", job.Attempts))
		return worker
	}
	job.State = models.StatePending
	q.push(job.ID, job.Priority)
	q.log.Info("job reclaimed", zap.String("job", job.ID),
		zap.String("worker", worker), zap.String("cause", cause),
		zap.Int("attempts", job.Attempts))
	return worker
}

// Get returns a copy of the job with the given id.
func (q *Queue) Get(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[id]; ok {
		return *job, true
	}
	return models.Job{}, false
}

// Counts returns job totals keyed by state.
func (q *Queue) Counts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[string]int, 4)
	for _, job := range q.jobs {
		counts[job.State]++
	}
	return counts
}

// DLQ returns the ids of terminally failed jobs, oldest first.
func (q *Queue) DLQ(limit int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.dlq) {
		limit = len(q.dlq)
	}
	out := make([]string, limit)
	copy(out, q.dlq[:limit])
	return out
}

// pendingItem orders the pending heap: higher priority first, then FIFO by
// insertion sequence.
type pendingItem struct {
	id       string
	priority int
	seq      uint64
}

type pendingHeap []pendingItem

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingItem)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
