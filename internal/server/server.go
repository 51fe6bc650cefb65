// Package server exposes the research workflow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/stategraph/graph"
	"github.com/dshills/stategraph/graph/emit"
	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/graph/store"
	"github.com/dshills/stategraph/research"
)

// Runner executes one question through the workflow.
type Runner interface {
	Ask(ctx context.Context, runID, question string) (graph.State, error)
}

// Deps are the collaborators served by the handler.
type Deps struct {
	Runner   Runner
	Graph    *graph.Graph
	Store    store.Store
	Events   *emit.BufferedEmitter
	Costs    *model.CostTracker
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	Question string `json:"question"`
	RunID    string `json:"run_id,omitempty"`
}

// RunResponse is returned by POST /runs, on success and on failure.
type RunResponse struct {
	RunID    string          `json:"run_id"`
	Answer   string          `json:"answer,omitempty"`
	Analyses []string        `json:"analyses"`
	Messages []model.Message `json:"messages"`
	Error    string          `json:"error,omitempty"`
}

type handler struct {
	Deps
}

// NewHandler returns the router:
//
//	POST /runs                  run a question, respond with the final state
//	GET  /runs/{runID}          latest journaled step
//	GET  /runs/{runID}/history  all journaled steps
//	GET  /runs/{runID}/events   buffered engine events
//	GET  /graph                 Mermaid diagram of the workflow
//	GET  /costs                 model usage since start
//	GET  /metrics               Prometheus metrics
//	GET  /healthz               liveness, including the journal connection
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/graph", h.graph)
	r.Get("/costs", h.costs)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.createRun)
		r.Get("/{runID}", h.latest)
		r.Get("/{runID}/history", h.history)
		r.Get("/{runID}/events", h.events)
	})
	return r
}

// pinger is implemented by journals backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Warn("journal unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "journal unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.RunID == "" {
		req.RunID = model.NewID("run")
	}

	final, err := h.Runner.Ask(r.Context(), req.RunID, req.Question)
	resp := RunResponse{
		RunID:    req.RunID,
		Answer:   research.Answer(final),
		Analyses: research.Analyses(final),
		Messages: research.Messages(final),
	}
	if err != nil {
		h.Logger.Error("run failed", "run_id", req.RunID, "error", err)
		resp.Answer = ""
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps run errors onto HTTP statuses.
func statusFor(err error) int {
	var malformed *graph.MalformedDecisionError
	switch {
	case errors.Is(err, graph.ErrRunExists):
		return http.StatusConflict
	case errors.As(err, &malformed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, graph.ErrNodeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	rec, err := h.Store.LoadLatest(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	recs, err := h.Store.History(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	h.Logger.Error("journal read failed", "error", err)
	writeError(w, http.StatusInternalServerError, "journal read failed")
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusNotFound, "event buffer disabled")
		return
	}
	filter := emit.HistoryFilter{
		Msg:    r.URL.Query().Get("msg"),
		NodeID: r.URL.Query().Get("node"),
	}
	events := h.Events.GetHistoryWithFilter(chi.URLParam(r, "runID"), filter)
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "no events for run")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) graph(w http.ResponseWriter, r *http.Request) {
	if h.Graph == nil {
		writeError(w, http.StatusNotFound, "no graph")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.Graph.Mermaid()))
}

func (h *handler) costs(w http.ResponseWriter, r *http.Request) {
	if h.Costs == nil {
		writeError(w, http.StatusNotFound, "cost tracking disabled")
		return
	}
	in, out := h.Costs.TokenUsage()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_usd":     h.Costs.TotalCost(),
		"by_model":      h.Costs.CostByModel(),
		"input_tokens":  in,
		"output_tokens": out,
		"calls":         len(h.Costs.Calls()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
