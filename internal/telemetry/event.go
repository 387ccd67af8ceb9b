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

package telemetry

import "time"

// Source types carried in the sourceType wire field
const (
	SourceChief   = "chief"
	SourceWorker  = "worker"
	SourceMonitor = "monitor"
)

// Event levels carried in the level wire field
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarn     = "WARN"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// Well-known event types emitted by the orchestrator
const (
	EventJobStarted      = "job.started"
	EventJobCompleted    = "job.completed"
	EventJobFailed       = "job.failed"
	EventJobNextSchedule = "job.next_scheduled"
	EventScriptStarted   = "script.started"
	EventScriptCompleted = "script.completed"
	EventDaemonDispatch  = "daemon.dispatch"
	EventOverlapSkipped  = "daemon.overlap_skipped"
	EventQueuedPending   = "daemon.queued_pending"
	EventHeartbeat       = "chief.heartbeat"
	EventWorkerMessage   = "worker.message"
)

// Event is the telemetry wire record posted to the monitor. Field names match
// the JSON contract; all timestamps are UTC.
type Event struct {
	SourceType   string         `json:"sourceType"`
	EventType    string         `json:"eventType"`
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	EventAt      time.Time      `json:"eventAt"`
	JobName      string         `json:"jobName,omitempty"`
	ScriptPath   string         `json:"scriptPath,omitempty"`
	RunID        string         `json:"runId,omitempty"`
	ScheduledFor *time.Time     `json:"scheduledFor,omitempty"`
	Success      *bool          `json:"success,omitempty"`
	ReturnCode   *int           `json:"returnCode,omitempty"`
	DurationMs   *int64         `json:"durationMs,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Normalize forces timestamps to UTC before serialization.
func (e Event) Normalize() Event {
	e.EventAt = e.EventAt.UTC()
	if e.ScheduledFor != nil {
		utc := e.ScheduledFor.UTC()
		e.ScheduledFor = &utc
	}
	return e
}

// Bool returns a pointer for an optional success field.
func Bool(v bool) *bool { return &v }

// Int returns a pointer for an optional returnCode field.
func Int(v int) *int { return &v }

// Int64 returns a pointer for an optional durationMs field.
func Int64(v int64) *int64 { return &v }

// Time returns a pointer for an optional timestamp field.
func Time(v time.Time) *time.Time {
	utc := v.UTC()
	return &utc
}
