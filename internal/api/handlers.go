// Package api exposes the HTTP surface: metric evaluation, refresh
// triggers, job status, and catalog listings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metricgrid-labs/metricgrid/internal/materialize"
	"github.com/metricgrid-labs/metricgrid/internal/metric"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Catalog is the read surface the listing endpoints need.
type Catalog interface {
	ListModels(ctx context.Context) ([]*core.ModelDefinition, error)
	ListMetrics(ctx context.Context) ([]*core.MetricDefinition, error)
}

// Handlers provides the HTTP handlers over the injected components.
// Resolver may be nil when no warehouse is configured; live evaluation
// requests are then rejected.
type Handlers struct {
	evaluator *metric.Evaluator
	resolver  *metric.Resolver
	worker    *materialize.Worker
	catalog   Catalog
	org       string
	logger    *slog.Logger
}

// NewHandlers creates the handler set. A nil logger discards.
func NewHandlers(evaluator *metric.Evaluator, resolver *metric.Resolver, worker *materialize.Worker, catalog Catalog, org string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handlers{
		evaluator: evaluator,
		resolver:  resolver,
		worker:    worker,
		catalog:   catalog,
		org:       org,
		logger:    logger,
	}
}

// evaluateRequest is the metric evaluation payload. Live selects the
// warehouse query path instead of the materialized rows.
type evaluateRequest struct {
	metric.Request
	Live bool `json:"live,omitempty"`
}

// EvaluateMetric resolves one metric value over a date window.
func (h *Handlers) EvaluateMetric(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MetricName == "" {
		writeError(w, http.StatusBadRequest, "metricName is required")
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}

	var (
		res *metric.Result
		err error
	)
	if req.Live {
		if h.resolver == nil {
			writeError(w, http.StatusBadRequest, "no warehouse configured for live evaluation")
			return
		}
		res, err = h.resolver.FetchMetric(r.Context(), h.org, req.Request)
	} else {
		res, err = h.evaluator.Evaluate(r.Context(), req.Request)
	}
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// refreshRequest carries the optional materialization window.
type refreshRequest struct {
	Incremental bool   `json:"incremental,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
}

// TriggerRefresh creates a refresh job for the model and returns its
// record immediately; processing runs detached.
func (h *Handlers) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")

	var req refreshRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Incremental && req.StartDate == "" {
		writeError(w, http.StatusBadRequest, "incremental refresh requires startDate")
		return
	}

	job, err := h.worker.TriggerRefresh(r.Context(), modelID, materialize.Options{
		Incremental: req.Incremental,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// JobStatus is a pure read of the job record.
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.worker.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type modelResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	PrimaryDateColumn string     `json:"primary_date_column"`
	DimensionColumns  []string   `json:"dimension_columns"`
	MeasureColumns    []string   `json:"measure_columns"`
	Grain             core.Grain `json:"grain"`
	LastRefreshedAt   *time.Time `json:"last_refreshed_at,omitempty"`
}

// ListModels returns the model catalog.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.ListModels(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, modelResponse{
			ID:                m.ID,
			Name:              m.Name,
			PrimaryDateColumn: m.PrimaryDateColumn,
			DimensionColumns:  m.DimensionColumns,
			MeasureColumns:    m.MeasureColumns,
			Grain:             m.Grain,
			LastRefreshedAt:   m.LastRefreshedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type metricResponse struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	ModelID       string              `json:"model_id"`
	MeasureColumn string              `json:"measure_column"`
	Aggregation   core.Aggregation    `json:"aggregation"`
	Filters       []core.MetricFilter `json:"filters,omitempty"`
}

// ListMetrics returns the metric catalog.
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.catalog.ListMetrics(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	out := make([]metricResponse, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, metricResponse{
			ID:            m.ID,
			Name:          m.Name,
			ModelID:       m.ModelID,
			MeasureColumn: m.MeasureColumn,
			Aggregation:   m.Aggregation,
			Filters:       m.Filters,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	var (
		verr *core.ValidationError
		derr *metric.UnknownDimensionError
	)
	switch {
	case errors.Is(err, core.ErrMetricNotFound),
		errors.Is(err, core.ErrModelNotFound),
		errors.Is(err, core.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr), errors.As(err, &derr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
