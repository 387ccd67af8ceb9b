/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/monitor/engine"
	"github.com/chiefworks/chief/internal/monitor/ingest"
	"github.com/chiefworks/chief/internal/monitor/metrics"
	"github.com/chiefworks/chief/internal/monitor/store"
)

// Handlers contains all API handlers
type Handlers struct {
	store     store.Store
	engine    *engine.Engine
	log       logr.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(s store.Store, e *engine.Engine, log logr.Logger, startTime time.Time) *Handlers {
	return &Handlers{
		store:     s,
		engine:    e,
		log:       log,
		startTime: startTime,
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// PostEvent handles POST /v1/events
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}
	resp := h.ingestEvents(r, []map[string]any{raw})
	writeJSON(w, http.StatusOK, resp)
}

// PostEventBatch handles POST /v1/events/batch
func (h *Handlers) PostEventBatch(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON array")
		return
	}
	if len(batch) > ingest.MaxBatchSize {
		writeError(w, http.StatusBadRequest, "batch_too_large",
			fmt.Sprintf("batch exceeds %d events", ingest.MaxBatchSize))
		return
	}
	resp := h.ingestEvents(r, batch)
	writeJSON(w, http.StatusOK, resp)
}

// ingestEvents normalizes, persists, and applies a set of raw events.
// Malformed events count as dropped; check-engine failures on one event are
// logged and skipped.
func (h *Handlers) ingestEvents(r *http.Request, batch []map[string]any) IngestResponse {
	ctx := r.Context()
	now := time.Now().UTC()
	resp := IngestResponse{}
	insertedBySource := map[string]int{}

	for _, raw := range batch {
		event, ok := ingest.Normalize(raw, now)
		if !ok {
			resp.Dropped++
			continue
		}
		if err := h.store.InsertEvent(ctx, event); err != nil {
			h.log.Error(err, "failed to insert event", "eventType", event.EventType)
			resp.Dropped++
			continue
		}
		resp.Inserted++
		insertedBySource[event.SourceType]++

		if err := h.engine.Apply(ctx, event); err != nil {
			h.log.Error(err, "check engine failed for event",
				"eventType", event.EventType, "job", event.JobName)
		}
	}

	metrics.RecordIngest(insertedBySource, resp.Dropped)
	return resp
}

// GetChecks handles GET /v1/checks
func (h *Handlers) GetChecks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks, err := h.store.ListChecks(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	resp := CheckListResponse{Checks: make([]CheckView, 0, len(checks))}
	for _, check := range checks {
		latest, err := h.store.LatestEventForJob(ctx, check.JobName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		metrics.UpdateCheckStatus(check.JobName, check.Status)
		resp.Checks = append(resp.Checks, checkView(check, latest))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAlerts handles GET /v1/alerts
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := store.AlertQuery{
		JobName: r.URL.Query().Get("job"),
		Status:  r.URL.Query().Get("status"),
		Type:    r.URL.Query().Get("type"),
		Limit:   queryInt(r, "limit", 100),
		Offset:  queryInt(r, "offset", 0),
	}
	alerts, total, err := h.store.ListAlerts(ctx, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	if counts, err := h.store.CountOpenAlerts(ctx); err == nil {
		metrics.UpdateOpenAlerts(counts)
	}

	resp := AlertListResponse{Alerts: make([]AlertView, 0, len(alerts)), Total: total}
	for _, alert := range alerts {
		resp.Alerts = append(resp.Alerts, alertView(alert))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetEvents handles GET /v1/events
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := store.EventQuery{
		JobName:   r.URL.Query().Get("job"),
		EventType: r.URL.Query().Get("type"),
		Limit:     queryInt(r, "limit", 100),
		Offset:    queryInt(r, "offset", 0),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		at, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", "since must be RFC 3339")
			return
		}
		utc := at.UTC()
		q.Since = &utc
	}

	events, total, err := h.store.ListEvents(ctx, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	resp := EventListResponse{Events: make([]EventView, 0, len(events)), Total: total}
	for i := range events {
		resp.Events = append(resp.Events, *eventView(&events[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /v1/health
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	storageStatus := "connected"
	if err := h.store.Health(r.Context()); err != nil {
		storageStatus = "error: " + err.Error()
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Storage: storageStatus,
		Version: Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
