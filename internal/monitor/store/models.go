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

package store

import (
	"encoding/json"
	"time"
)

// Check statuses
const (
	StatusUp   = "UP"
	StatusLate = "LATE"
	StatusDown = "DOWN"
)

// Alert types
const (
	AlertFailure  = "FAILURE"
	AlertMissed   = "MISSED"
	AlertRecovery = "RECOVERY"
)

// Alert statuses
const (
	AlertOpen   = "OPEN"
	AlertClosed = "CLOSED"
)

// Alert severities
const (
	SeverityInfo     = "INFO"
	SeverityWarn     = "WARN"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Event is a persisted telemetry event (GORM model)
type Event struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	SourceType   string     `gorm:"column:source_type;size:16;not null"`
	EventType    string     `gorm:"column:event_type;size:64;not null;index:idx_event_type"`
	Level        string     `gorm:"column:level;size:16;not null"`
	Message      string     `gorm:"column:message;type:text;not null"`
	EventAt      time.Time  `gorm:"column:event_at;not null;index:idx_event_at;index:idx_job_time,priority:2,sort:desc"`
	ReceivedAt   time.Time  `gorm:"column:received_at;not null"`
	JobName      string     `gorm:"column:job_name;size:253;index:idx_job_time,priority:1"`
	ScriptPath   string     `gorm:"column:script_path;size:1024"`
	RunID        string     `gorm:"column:run_id;size:300;index:idx_run_id"`
	ScheduledFor *time.Time `gorm:"column:scheduled_for"`
	Success      *bool      `gorm:"column:success"`
	ReturnCode   *int       `gorm:"column:return_code"`
	DurationMs   *int64     `gorm:"column:duration_ms"`
	Metadata     string     `gorm:"column:metadata;type:text"` // JSON object
}

// TableName specifies the table name for Event
func (*Event) TableName() string {
	return "events"
}

// MetadataMap decodes the stored metadata JSON. Malformed or empty metadata
// yields an empty map.
func (e *Event) MetadataMap() map[string]any {
	if e.Metadata == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Metadata), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// SetMetadata encodes a metadata map into the stored JSON column.
func (e *Event) SetMetadata(m map[string]any) {
	if len(m) == 0 {
		e.Metadata = ""
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		e.Metadata = ""
		return
	}
	e.Metadata = string(data)
}

// Check is the per-job health record (GORM model)
type Check struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement"`
	JobName             string     `gorm:"column:job_name;size:253;not null;uniqueIndex"`
	Enabled             bool       `gorm:"column:enabled;not null;default:true"`
	AlertOnFailure      bool       `gorm:"column:alert_on_failure;not null;default:true"`
	AlertOnMiss         bool       `gorm:"column:alert_on_miss;not null;default:true"`
	GraceSeconds        int        `gorm:"column:grace_seconds;not null;default:120"`
	Status              string     `gorm:"column:status;size:8;not null;default:UP"`
	ExpectedNextAt      *time.Time `gorm:"column:expected_next_at"`
	LastHeartbeatAt     *time.Time `gorm:"column:last_heartbeat_at"`
	LastSuccessAt       *time.Time `gorm:"column:last_success_at"`
	LastFailureAt       *time.Time `gorm:"column:last_failure_at"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;not null;default:0"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for Check
func (*Check) TableName() string {
	return "checks"
}

// Alert is a raised condition with a dedupe key (GORM model)
type Alert struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	JobName   string     `gorm:"column:job_name;size:253;not null;index:idx_alert_job"`
	Type      string     `gorm:"column:alert_type;size:16;not null;index:idx_alert_open,priority:2"`
	Severity  string     `gorm:"column:severity;size:16;not null"`
	Status    string     `gorm:"column:status;size:8;not null;index:idx_alert_open,priority:1;index:idx_alert_dedupe,priority:2"`
	Title     string     `gorm:"column:title;size:300"`
	Message   string     `gorm:"column:message;type:text"`
	Details   string     `gorm:"column:details;type:text"` // JSON object
	DedupeKey string     `gorm:"column:dedupe_key;size:300;not null;index:idx_alert_dedupe,priority:1"`
	OpenedAt  time.Time  `gorm:"column:opened_at;not null;index:idx_alert_opened,sort:desc"`
	ClosedAt  *time.Time `gorm:"column:closed_at"`
}

// DetailsMap decodes the stored details JSON. Malformed or empty details
// yield an empty map.
func (a *Alert) DetailsMap() map[string]any {
	if a.Details == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(a.Details), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// SetDetails encodes a details map into the stored JSON column.
func (a *Alert) SetDetails(m map[string]any) {
	if len(m) == 0 {
		a.Details = ""
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		a.Details = ""
		return
	}
	a.Details = string(data)
}

// TableName specifies the table name for Alert
func (*Alert) TableName() string {
	return "alerts"
}

// EventQuery contains parameters for listing events
type EventQuery struct {
	JobName   string
	EventType string
	Limit     int
	Offset    int
	Since     *time.Time
}

// AlertQuery contains parameters for listing alerts
type AlertQuery struct {
	JobName string
	Status  string
	Type    string
	Limit   int
	Offset  int
}
