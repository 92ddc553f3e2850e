// Package registry tracks known workers, their liveness, and capacity.
package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/models"
)

// Registry is the dispatcher's record of remote workers. It owns every
// WorkerHandle it holds; callers only ever see copies. All methods are safe
// for concurrent use behind one mutex with short critical sections.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*models.WorkerHandle

	suspectAfter    time.Duration
	deadAfter       time.Duration
	defaultCapacity int
	log             *zap.Logger
}

// New builds an empty registry. suspectAfter is the silence window before an
// alive worker becomes suspect; deadAfter is the longer window before a
// suspect worker is declared dead.
func New(suspectAfter, deadAfter time.Duration, defaultCapacity int, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		workers:         make(map[string]*models.WorkerHandle),
		suspectAfter:    suspectAfter,
		deadAfter:       deadAfter,
		defaultCapacity: defaultCapacity,
		log:             log,
	}
}

// Register adds a worker in Unknown state. Registering an existing id keeps
// the handle but refreshes address and capacity.
func (r *Registry) Register(id, address string, capacity int) {
	if capacity <= 0 {
		capacity = r.defaultCapacity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok {
		w.Address = address
		w.Capacity = capacity
		return
	}
	r.workers[id] = &models.WorkerHandle{
		ID:       id,
		Address:  address,
		State:    models.WorkerUnknown,
		Capacity: capacity,
	}
}

// Heartbeat records liveness for a worker. An unknown id registers
// implicitly; a Dead worker's identity is reused and reset to a fresh Alive
// handle. The worker's reported load is authoritative.
func (r *Registry) Heartbeat(hb models.Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[hb.WorkerID]
	if !ok {
		capacity := hb.Capacity
		if capacity <= 0 {
			capacity = r.defaultCapacity
		}
		w = &models.WorkerHandle{ID: hb.WorkerID, Capacity: capacity}
		r.workers[hb.WorkerID] = w
	}
	if w.State == models.WorkerDead {
		r.log.Info("dead worker re-registered", zap.String("worker", hb.WorkerID))
		w.Load = 0
	}
	if hb.Address != "" {
		w.Address = hb.Address
	}
	if hb.Capacity > 0 {
		w.Capacity = hb.Capacity
	}
	if hb.CurrentLoad >= 0 {
		w.Load = hb.CurrentLoad
		if w.Load > w.Capacity {
			w.Load = w.Capacity
		}
	}
	w.State = models.WorkerAlive
	w.LastHeartbeat = hb.Timestamp
}

// MarkDead forces a worker into the Dead state and drops its load.
func (r *Registry) MarkDead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok {
		w.State = models.WorkerDead
		w.Load = 0
	}
}

// Select returns up to n Alive workers with spare capacity, ordered by
// ascending load/capacity ratio, ties broken by earliest last heartbeat.
// Suspect and Dead workers are never returned.
func (r *Registry) Select(n int) []models.WorkerHandle {
	r.mu.Lock()
	eligible := make([]models.WorkerHandle, 0, len(r.workers))
	for _, w := range r.workers {
		if w.State == models.WorkerAlive && w.Spare() > 0 {
			eligible = append(eligible, *w)
		}
	}
	r.mu.Unlock()

	sort.Slice(eligible, func(i, j int) bool {
		ri := float64(eligible[i].Load) / float64(eligible[i].Capacity)
		rj := float64(eligible[j].Load) / float64(eligible[j].Capacity)
		if ri != rj {
			return ri < rj
		}
		return eligible[i].LastHeartbeat.Before(eligible[j].LastHeartbeat)
	})
	if n > 0 && len(eligible) > n {
		eligible = eligible[:n]
	}
	return eligible
}

// IncLoad counts one more assignment against the worker. It refuses to
// exceed capacity or to load a non-Alive worker.
func (r *Registry) IncLoad(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok || w.State != models.WorkerAlive || w.Load >= w.Capacity {
		return false
	}
	w.Load++
	return true
}

// DecLoad releases one assignment slot, flooring at zero.
func (r *Registry) DecLoad(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok && w.Load > 0 {
		w.Load--
	}
}

// Sweep applies timeout transitions as of now: Alive workers silent past
// suspectAfter become Suspect, Suspect workers silent past deadAfter become
// Dead. The ids of newly dead workers are returned so their assignments can
// be reclaimed exactly once.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dead []string
	for _, w := range r.workers {
		silent := now.Sub(w.LastHeartbeat)
		switch w.State {
		case models.WorkerAlive:
			if silent > r.suspectAfter {
				w.State = models.WorkerSuspect
				r.log.Warn("worker suspect", zap.String("worker", w.ID),
					zap.Duration("silent", silent))
			}
		case models.WorkerSuspect:
			if silent > r.deadAfter {
				w.State = models.WorkerDead
				w.Load = 0
				dead = append(dead, w.ID)
				r.log.Warn("worker dead", zap.String("worker", w.ID),
					zap.Duration("silent", silent))
			}
		}
	}
	return dead
}

// Get returns a copy of the handle for id.
func (r *Registry) Get(id string) (models.WorkerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok {
		return *w, true
	}
	return models.WorkerHandle{}, false
}

// Counts returns worker totals keyed by state.
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, 4)
	for _, w := range r.workers {
		counts[w.State]++
	}
	return counts
}
