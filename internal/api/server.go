package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"distributed-job-dispatcher/internal/config"
	"distributed-job-dispatcher/internal/dispatch"
	"distributed-job-dispatcher/internal/models"
	"distributed-job-dispatcher/internal/ratelimit"
	"distributed-job-dispatcher/internal/telemetry"
)

// Server wires HTTP handlers for job submission, the worker wire exchange,
// and the read-only status view.
type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Server
	limiter    *ratelimit.TokenBucket
	log        *zap.Logger
}

// New constructs the API server. The limiter may be nil to disable
// submission rate limiting.
func New(cfg config.Config, d *dispatch.Server, limiter *ratelimit.TokenBucket, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, dispatcher: d, limiter: limiter, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Post("/heartbeat", s.handleHeartbeat)
	r.Post("/report", s.handleReport)
	r.Get("/status", s.handleStatus)
	r.Get("/dlq", s.handleDLQ)
	return r
}

type submitRequest struct {
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    int            `json:"priority"`
	MaxAttempts int            `json:"max_attempts"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.MaxAttempts
	}

	if s.limiter != nil {
		limKey := fmt.Sprintf("rl:%s", clientFromRequest(r))
		allowed, _, err := s.limiter.Allow(r.Context(), limKey)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job := s.dispatcher.Submit(req.Type, req.Payload, req.Priority, req.MaxAttempts)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.dispatcher.Job(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb models.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if hb.WorkerID == "" {
		http.Error(w, "worker_id is required", http.StatusBadRequest)
		return
	}
	assignments := s.dispatcher.HandleHeartbeat(hb)
	writeJSON(w, http.StatusOK, models.HeartbeatResponse{Assignments: assignments})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep models.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if rep.JobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}
	applied := s.dispatcher.HandleReport(rep)
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Status())
}

// handleDLQ returns the terminally failed job ids.
func (s *Server) handleDLQ(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.dispatcher.DLQ(100)})
}

func clientFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
