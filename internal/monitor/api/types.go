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
	"time"

	"github.com/chiefworks/chief/internal/monitor/store"
)

// ErrorDetail describes an API error
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// IngestResponse reports the outcome of an ingest request
type IngestResponse struct {
	Inserted int `json:"inserted"`
	Dropped  int `json:"dropped"`
}

// EventView is the API representation of a stored event
type EventView struct {
	ID           int64          `json:"id"`
	SourceType   string         `json:"sourceType"`
	EventType    string         `json:"eventType"`
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	EventAt      time.Time      `json:"eventAt"`
	ReceivedAt   time.Time      `json:"receivedAt"`
	JobName      string         `json:"jobName,omitempty"`
	ScriptPath   string         `json:"scriptPath,omitempty"`
	RunID        string         `json:"runId,omitempty"`
	ScheduledFor *time.Time     `json:"scheduledFor,omitempty"`
	Success      *bool          `json:"success,omitempty"`
	ReturnCode   *int           `json:"returnCode,omitempty"`
	DurationMs   *int64         `json:"durationMs,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CheckView is the API representation of a check row. The latest event is
// denormalized into the view; it is never stored on the check.
type CheckView struct {
	JobName             string     `json:"jobName"`
	Enabled             bool       `json:"enabled"`
	AlertOnFailure      bool       `json:"alertOnFailure"`
	AlertOnMiss         bool       `json:"alertOnMiss"`
	GraceSeconds        int        `json:"graceSeconds"`
	Status              string     `json:"status"`
	ExpectedNextAt      *time.Time `json:"expectedNextAt,omitempty"`
	LastHeartbeatAt     *time.Time `json:"lastHeartbeatAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	LatestEvent         *EventView `json:"latestEvent,omitempty"`
}

// AlertView is the API representation of an alert
type AlertView struct {
	ID        int64          `json:"id"`
	JobName   string         `json:"jobName"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Status    string         `json:"status"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	DedupeKey string         `json:"dedupeKey"`
	OpenedAt  time.Time      `json:"openedAt"`
	ClosedAt  *time.Time     `json:"closedAt,omitempty"`
}

// EventListResponse is the paginated event listing
type EventListResponse struct {
	Events []EventView `json:"events"`
	Total  int64       `json:"total"`
}

// CheckListResponse is the check listing
type CheckListResponse struct {
	Checks []CheckView `json:"checks"`
}

// AlertListResponse is the paginated alert listing
type AlertListResponse struct {
	Alerts []AlertView `json:"alerts"`
	Total  int64       `json:"total"`
}

// HealthResponse is the health endpoint body
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func eventView(ev *store.Event) *EventView {
	if ev == nil {
		return nil
	}
	view := &EventView{
		ID:           ev.ID,
		SourceType:   ev.SourceType,
		EventType:    ev.EventType,
		Level:        ev.Level,
		Message:      ev.Message,
		EventAt:      ev.EventAt,
		ReceivedAt:   ev.ReceivedAt,
		JobName:      ev.JobName,
		ScriptPath:   ev.ScriptPath,
		RunID:        ev.RunID,
		ScheduledFor: ev.ScheduledFor,
		Success:      ev.Success,
		ReturnCode:   ev.ReturnCode,
		DurationMs:   ev.DurationMs,
	}
	if meta := ev.MetadataMap(); len(meta) > 0 {
		view.Metadata = meta
	}
	return view
}

func checkView(check store.Check, latest *store.Event) CheckView {
	return CheckView{
		JobName:             check.JobName,
		Enabled:             check.Enabled,
		AlertOnFailure:      check.AlertOnFailure,
		AlertOnMiss:         check.AlertOnMiss,
		GraceSeconds:        check.GraceSeconds,
		Status:              check.Status,
		ExpectedNextAt:      check.ExpectedNextAt,
		LastHeartbeatAt:     check.LastHeartbeatAt,
		LastSuccessAt:       check.LastSuccessAt,
		LastFailureAt:       check.LastFailureAt,
		ConsecutiveFailures: check.ConsecutiveFailures,
		UpdatedAt:           check.UpdatedAt,
		LatestEvent:         eventView(latest),
	}
}

func alertView(alert store.Alert) AlertView {
	view := AlertView{
		ID:        alert.ID,
		JobName:   alert.JobName,
		Type:      alert.Type,
		Severity:  alert.Severity,
		Status:    alert.Status,
		Title:     alert.Title,
		Message:   alert.Message,
		DedupeKey: alert.DedupeKey,
		OpenedAt:  alert.OpenedAt,
		ClosedAt:  alert.ClosedAt,
	}
	if details := alert.DetailsMap(); len(details) > 0 {
		view.Details = details
	}
	return view
}
