package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/you/alarmchain/internal/query"
	"github.com/you/alarmchain/models"
)

// QueryService is the read side of query.Service
type QueryService interface {
	FilterOptions(key string) (*query.FilterOptions, error)
	Overview(key string, spec models.FilterSpec) (*query.Overview, error)
	KPI(key string, spec models.FilterSpec) (*query.KPI, error)
	TrainAnalytics(key string, spec models.FilterSpec, trainNo string, limit int) (*query.TrainAnalytics, error)
	DayAnalysis(key string, spec models.FilterSpec) (*query.DayAnalysis, error)
	Timeline(key string, spec models.FilterSpec, granularity string) (*query.Timeline, error)
	TrainTimeline(key string, spec models.FilterSpec, trainNo, granularity string) (*query.Timeline, error)
	TrainIncidents(key string, spec models.FilterSpec, limit int) (*query.TrainIncidents, error)
	TrainList(key string, spec models.FilterSpec, limit int) (*query.TrainList, error)
	TrainSearch(key, prefix string) (*query.TrainSearch, error)
	Table(key string, req models.TableRequest) (*query.TablePage, error)
	Export(key string, spec models.FilterSpec, format string) (*query.Export, error)
}

// AnalyticsHandler handles dashboard queries against an uploaded dataset.
// Every route carries the dataset's cache key as {cacheKey}.
type AnalyticsHandler struct {
	svc    QueryService
	logger *logrus.Logger
}

// NewAnalyticsHandler creates a new handler with the given service
func NewAnalyticsHandler(svc QueryService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, logger: logger}
}

// decodeBody reads an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// queryInt parses an optional integer query parameter, 0 when absent
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return n, nil
}

// filtered runs a query that takes the key and the FilterSpec body
func (h *AnalyticsHandler) filtered(w http.ResponseWriter, r *http.Request, run func(key string, spec models.FilterSpec) (interface{}, error)) {
	key := chi.URLParam(r, "cacheKey")

	var spec models.FilterSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, h.logger, key, err)
		return
	}

	result, err := run(key, spec)
	if err != nil {
		writeError(w, h.logger, key, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFilterOptions handles GET /filter-options/{cacheKey}
func (h *AnalyticsHandler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "cacheKey")

	opts, err := h.svc.FilterOptions(key)
	if err != nil {
		writeError(w, h.logger, key, err)
		return
	}

	// Options only change with the dataset, which is immutable per key
	w.Header().Set("Cache-Control", "private, max-age=300")
	writeJSON(w, http.StatusOK, opts)
}

// PostOverview handles POST /analytics/{cacheKey}
func (h *AnalyticsHandler) PostOverview(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		return h.svc.Overview(key, spec)
	})
}

// PostKPI handles POST /kpi-data/{cacheKey}
func (h *AnalyticsHandler) PostKPI(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		return h.svc.KPI(key, spec)
	})
}

// PostTrainAnalytics handles POST /train-analytics/{cacheKey}?train_no=&limit=
func (h *AnalyticsHandler) PostTrainAnalytics(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			return nil, err
		}
		return h.svc.TrainAnalytics(key, spec, r.URL.Query().Get("train_no"), limit)
	})
}

// PostDayAnalysis handles POST /day-analysis/{cacheKey}
func (h *AnalyticsHandler) PostDayAnalysis(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		return h.svc.DayAnalysis(key, spec)
	})
}

// PostTimeline handles POST /timeline/{cacheKey}?granularity=
func (h *AnalyticsHandler) PostTimeline(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		return h.svc.Timeline(key, spec, r.URL.Query().Get("granularity"))
	})
}

// PostTrainTimeline handles POST /train-timeline/{cacheKey}?train_no=&granularity=
func (h *AnalyticsHandler) PostTrainTimeline(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		q := r.URL.Query()
		return h.svc.TrainTimeline(key, spec, q.Get("train_no"), q.Get("granularity"))
	})
}

// PostTrainIncidents handles POST /train-incidents/{cacheKey}?limit=
func (h *AnalyticsHandler) PostTrainIncidents(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			return nil, err
		}
		return h.svc.TrainIncidents(key, spec, limit)
	})
}

// PostTrainList handles POST /train-list/{cacheKey}?limit=
func (h *AnalyticsHandler) PostTrainList(w http.ResponseWriter, r *http.Request) {
	h.filtered(w, r, func(key string, spec models.FilterSpec) (interface{}, error) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			return nil, err
		}
		return h.svc.TrainList(key, spec, limit)
	})
}

// GetTrainSearch handles GET /train-search/{cacheKey}?query=
func (h *AnalyticsHandler) GetTrainSearch(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "cacheKey")

	res, err := h.svc.TrainSearch(key, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, h.logger, key, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PostTable handles POST /table/{cacheKey}
// Body: {filters, page, page_size, sort_by, sort_desc}; page 1 and 50 rows by default.
func (h *AnalyticsHandler) PostTable(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "cacheKey")

	req := models.NewTableRequest()
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, key, err)
		return
	}

	page, err := h.svc.Table(key, req)
	if err != nil {
		writeError(w, h.logger, key, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// PostExport handles POST /export-data/{cacheKey}?format=csv|json|yaml
// Returns the full filtered record set as a file download.
func (h *AnalyticsHandler) PostExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "cacheKey")

	var spec models.FilterSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, h.logger, key, err)
		return
	}

	export, err := h.svc.Export(key, spec, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, h.logger, key, err)
		return
	}

	w.Header().Set("Content-Type", export.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.Header().Set("X-Total-Records", strconv.Itoa(export.Records))
	w.WriteHeader(http.StatusOK)
	w.Write(export.Body)
}
