package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/unitmatch/internal/config"
	"github.com/banshee-data/unitmatch/internal/httputil"
	"github.com/banshee-data/unitmatch/internal/report"
	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/google/uuid"
)

// reportHandlers serves stored sessions and runs. Run routes take an optional
// ?run=ID and default to the latest run.
type reportHandlers struct {
	db *store.DB
}

func (h *reportHandlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("GET /api/runs", h.listRuns)
	mux.HandleFunc("GET /api/identities", h.listIdentities)
	mux.HandleFunc("GET /runs/identities.html", h.identities)
	mux.HandleFunc("GET /runs/weights.png", h.weights)
}

// runID parses ?run=; uuid.Nil selects the latest run.
func runID(r *http.Request) (uuid.UUID, error) {
	q := r.URL.Query().Get("run")
	if q == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(q)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q", q)
	}
	return id, nil
}

func (h *reportHandlers) run(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id, err := runID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	var run *store.Run
	if id == uuid.Nil {
		run, err = h.db.LatestRun(r.Context())
	} else {
		run, err = h.db.GetRun(r.Context(), id)
	}
	if err != nil {
		httputil.WriteError(w, err, store.ErrRunNotFound)
		return nil, false
	}
	return run, true
}

func (h *reportHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.db.ListSessions(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (h *reportHandlers) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListRuns(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (h *reportHandlers) listIdentities(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	ids, err := h.db.ListIdentities(r.Context(), run.ID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, ids)
}

// graphsFunc is LoadGraphs or LoadCandidateGraphs.
type graphsFunc func(ctx context.Context, runID uuid.UUID) (map[string]*tracking.Graph, error)

func (h *reportHandlers) graphs(w http.ResponseWriter, r *http.Request, load graphsFunc) (*store.Run, map[string]*tracking.Graph, bool) {
	run, ok := h.run(w, r)
	if !ok {
		return nil, nil, false
	}
	graphs, err := load(r.Context(), run.ID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, nil, false
	}
	return run, graphs, true
}

func (h *reportHandlers) identities(w http.ResponseWriter, r *http.Request) {
	run, graphs, ok := h.graphs(w, r, h.db.LoadGraphs)
	if !ok {
		return
	}
	flat, err := h.db.ListIdentities(r.Context(), run.ID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	byGroup := make(map[string][]tracking.IdentifiedUnit)
	for _, id := range flat {
		byGroup[id.ChannelGroup] = append(byGroup[id.ChannelGroup], id)
	}

	var buf bytes.Buffer
	if err := report.WriteIdentityGraph(&buf, graphs, byGroup); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// pruneThreshold reads prune_dissimilarity from a run's config snapshot.
func pruneThreshold(run *store.Run) float64 {
	var cfg config.TrackingConfig
	if len(run.Config) == 0 || json.Unmarshal(run.Config, &cfg) != nil {
		return 0
	}
	return cfg.GetPruneDissimilarity()
}

// weights plots every candidate edge of the run, pruned ones included, with
// the run's prune threshold unless ?threshold= overrides it.
func (h *reportHandlers) weights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("threshold")
	var override *float64
	if q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid threshold %q", q))
			return
		}
		override = &v
	}
	run, graphs, ok := h.graphs(w, r, h.db.LoadCandidateGraphs)
	if !ok {
		return
	}
	threshold := pruneThreshold(run)
	if override != nil {
		threshold = *override
	}

	var buf bytes.Buffer
	if err := report.WriteWeightHistogram(&buf, graphs, threshold); err != nil {
		if errors.Is(err, report.ErrNoEdges) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
