package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/mediaflow/internal/agents"
	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/metrics"
	"github.com/example/mediaflow/internal/models"
	"github.com/example/mediaflow/internal/orchestrator"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	Orch   *orchestrator.Orchestrator
	Tools  []string
	Logger *slog.Logger
	// Heartbeat is the SSE keep-alive period; zero means 15s.
	Heartbeat time.Duration
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/tools", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"tools": s.Tools})
	})

	r.Post("/plans", s.createPlan)
	r.Post("/plans/validate", s.validatePlan)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.startRun)
		r.Post("/stream", s.streamRun)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/events", s.runEvents)
		r.Post("/{id}/cancel", s.cancelRun)
	})
	return r
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req agents.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	plan, err := s.Orch.Plan(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (s *Server) validatePlan(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	resp := map[string]any{"valid": true}
	if err := s.Orch.Verify(req.Plan, req.Configs); err != nil {
		resp["valid"] = false
		var pe *models.PlanError
		if errors.As(err, &pe) {
			resp["problems"] = pe.Problems
		} else {
			resp["problems"] = []string{err.Error()}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Orch.List())
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	info, err := s.Orch.StartRun(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Location", "/runs/"+info.ID)
	respondJSON(w, http.StatusAccepted, info)
}

// streamRun runs the plan for as long as the client stays connected.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	info, err := s.Orch.StreamRun(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	ch, unsub, err := s.Orch.Subscribe(info.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer unsub()
	s.streamEvents(w, r, ch)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	info, ok := s.Orch.Get(chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, orchestrator.ErrRunNotFound)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) runEvents(w http.ResponseWriter, r *http.Request) {
	ch, unsub, err := s.Orch.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	defer unsub()
	s.streamEvents(w, r, ch)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Orch.Cancel(id); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var pe *models.PlanError
	switch {
	case errors.As(err, &pe):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "problems": pe.Problems})
	case errors.Is(err, orchestrator.ErrRunNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, orchestrator.ErrRunFinished):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrEmptyPlan), errors.Is(err, engine.ErrUnknownStep),
		errors.Is(err, engine.ErrMissingPreviousOutput), errors.Is(err, agents.ErrEmptyPrompt):
		respondError(w, http.StatusBadRequest, err)
	default:
		s.logger().Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": fmt.Sprint(err)})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// cors allows any origin for the local editor UI.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
