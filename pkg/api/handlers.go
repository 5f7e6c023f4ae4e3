package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/logsift/logsift/pkg/alarm"
	"github.com/logsift/logsift/pkg/config"
	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/obs"
	"github.com/logsift/logsift/pkg/query"
	"github.com/logsift/logsift/pkg/retention"
	"github.com/logsift/logsift/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler wires the core engines to the HTTP surface. It is a thin
// adapter: transport parsing only, all semantics live in the engines.
type Handler struct {
	store     storage.Store
	executor  *query.Executor
	alarms    *alarm.Engine
	retention *retention.Engine
	log       *logrus.Logger
}

// NewHandler creates the API handler
func NewHandler(store storage.Store, executor *query.Executor, alarms *alarm.Engine, ret *retention.Engine, log *logrus.Logger) *Handler {
	return &Handler{
		store:     store,
		executor:  executor,
		alarms:    alarms,
		retention: ret,
		log:       log,
	}
}

// Router builds the API route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/ingest", h.HandleIngest).Methods(http.MethodPost)
	v1.HandleFunc("/search", h.HandleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/search/histogram", h.HandleHistogram).Methods(http.MethodGet)
	v1.HandleFunc("/search/stream", h.HandleStream).Methods(http.MethodGet)
	v1.HandleFunc("/alarms/{id}/ack", h.HandleAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/alarms/dryrun", h.HandleDryRun).Methods(http.MethodPost)
	v1.HandleFunc("/retention/apply", h.HandleRetentionApply).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// ingestRequest is the POST /ingest payload: a batch of producer-formed
// entries. Transport formats (syslog etc.) are the producer's problem.
type ingestRequest struct {
	Entries []logs.Entry `json:"entries"`
}

// HandleIngest handles POST /api/v1/ingest.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if len(req.Entries) == 0 {
		respondErrorString(w, http.StatusBadRequest, "entries are required")
		return
	}
	if len(req.Entries) > config.IngestMaxBatchSize {
		respondErrorString(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds %d entries", config.IngestMaxBatchSize))
		return
	}

	now := time.Now().UnixMilli()
	for i := range req.Entries {
		e := &req.Entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.RecordTime == 0 {
			e.RecordTime = now
		}
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
	}

	start := time.Now()
	if err := h.store.Ingest(ctx, req.Entries); err != nil {
		obs.Get().IngestErrorsTotal.Inc()
		h.log.WithError(err).Error("ingest failed")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	obs.Get().IngestDuration.Observe(time.Since(start).Seconds())
	obs.Get().EntriesIngestedTotal.Add(float64(len(req.Entries)))

	respondJSON(w, http.StatusAccepted, map[string]int{"ingested": len(req.Entries)})
}

// parseSearchRequest extracts a query.Request from URL parameters.
func parseSearchRequest(r *http.Request) (query.Request, error) {
	q, err := query.Parse(r.URL.Query().Get("q"))
	if err != nil {
		return query.Request{}, err
	}

	req := query.Request{Query: q}
	params := r.URL.Query()

	if v := params.Get("start"); v != "" {
		if req.Start, err = strconv.ParseInt(v, 10, 64); err != nil {
			return query.Request{}, fmt.Errorf("invalid start: %w", err)
		}
	}
	if v := params.Get("end"); v != "" {
		if req.End, err = strconv.ParseInt(v, 10, 64); err != nil {
			return query.Request{}, fmt.Errorf("invalid end: %w", err)
		}
	}
	// Zero bounds are defaulted by the executor; anything else must form
	// a forward range.
	if req.Start != 0 && req.End != 0 && req.End <= req.Start {
		return query.Request{}, query.ErrInvalidTimeRange
	}
	if v := params.Get("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil {
			return query.Request{}, fmt.Errorf("invalid page: %w", err)
		}
	}
	if v := params.Get("page_size"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			return query.Request{}, fmt.Errorf("invalid page_size: %w", err)
		}
	}
	req.SortField = params.Get("sort")
	req.Ascending = params.Get("order") == "asc"
	return req, nil
}

// HandleSearch handles GET /api/v1/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.SearchTimeout)
	defer cancel()

	req, err := parseSearchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	obs.Get().SearchesTotal.Inc()
	result, err := h.executor.Search(ctx, req)
	if errors.Is(err, query.ErrInvalidTimeRange) {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		obs.Get().SearchErrorsTotal.Inc()
		h.log.WithError(err).Error("search failed")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	obs.Get().SearchDuration.Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, result)
}

// HandleHistogram handles GET /api/v1/search/histogram: same execution
// as search but the response carries only the histogram.
func (h *Handler) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.SearchTimeout)
	defer cancel()

	req, err := parseSearchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.executor.Search(ctx, req)
	if errors.Is(err, query.ErrInvalidTimeRange) {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_count": result.TotalCount,
		"histogram":   result.Histogram,
	})
}

// HandleAcknowledge handles POST /api/v1/alarms/{id}/ack.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.alarms.Acknowledge(id); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(alarm.StateAcknowledged)})
}

// dryRunRequest is the POST /alarms/dryrun payload. Either an alarm id
// or an ad hoc query+condition.
type dryRunRequest struct {
	AlarmID           string           `json:"alarm_id,omitempty"`
	Query             string           `json:"query,omitempty"`
	Condition         *alarm.Condition `json:"condition,omitempty"`
	TimeWindowMinutes int              `json:"time_window_minutes,omitempty"`
}

// HandleDryRun handles POST /api/v1/alarms/dryrun.
func (h *Handler) HandleDryRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.SearchTimeout)
	defer cancel()

	var req dryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	var (
		verdict *alarm.Verdict
		err     error
	)
	switch {
	case req.AlarmID != "":
		verdict, err = h.alarms.DryRunAlarm(ctx, req.AlarmID)
	case req.Condition != nil:
		verdict, err = h.alarms.DryRun(ctx, req.Query, *req.Condition, req.TimeWindowMinutes)
	default:
		respondErrorString(w, http.StatusBadRequest, "either alarm_id or query+condition is required")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, verdict)
}

// HandleRetentionApply handles POST /api/v1/retention/apply: an
// on-demand sweep with the same semantics as the scheduled one.
func (h *Handler) HandleRetentionApply(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.retention.ApplyAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"entries": stats.TotalEntries,
	})
}
