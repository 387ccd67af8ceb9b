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

// Package engine maintains per-job check state and the alert lifecycle from
// the incoming event stream.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/monitor/store"
)

// DefaultGraceSeconds is the lateness tolerance applied when a job carries no
// explicit grace setting.
const DefaultGraceSeconds = 120

// Engine applies accepted events to check rows and opens/closes alerts.
type Engine struct {
	store store.Store
	log   logr.Logger
}

// New creates a check engine over the given store.
func New(s store.Store, log logr.Logger) *Engine {
	return &Engine{store: s, log: log}
}

// Apply processes one accepted event. Events without a job name are ignored.
// Errors are returned for store failures only; semantic oddities in the event
// are tolerated.
func (e *Engine) Apply(ctx context.Context, event *store.Event) error {
	if event.JobName == "" {
		return nil
	}

	check, err := e.store.GetCheck(ctx, event.JobName)
	if err != nil {
		return fmt.Errorf("load check for %s: %w", event.JobName, err)
	}
	if check == nil {
		check = &store.Check{
			JobName:        event.JobName,
			Enabled:        true,
			AlertOnFailure: true,
			AlertOnMiss:    true,
			GraceSeconds:   DefaultGraceSeconds,
			Status:         store.StatusUp,
		}
	}
	refreshConfig(check, event.MetadataMap())

	switch event.EventType {
	case "job.next_scheduled":
		e.applyNextScheduled(check, event)
	case "job.started":
		if err := e.applyHeartbeat(ctx, check, event); err != nil {
			return err
		}
	case "job.completed", "job.failed":
		if err := e.applyHeartbeat(ctx, check, event); err != nil {
			return err
		}
		if err := e.applyOutcome(ctx, check, event); err != nil {
			return err
		}
	}

	if err := e.store.SaveCheck(ctx, check); err != nil {
		return fmt.Errorf("save check for %s: %w", event.JobName, err)
	}
	return nil
}

// refreshConfig overwrites check settings with any present in the event
// metadata. Absent keys leave the stored value untouched.
func refreshConfig(check *store.Check, meta map[string]any) {
	if v, ok := meta["check_enabled"].(bool); ok {
		check.Enabled = v
	}
	if v, ok := meta["alert_on_failure"].(bool); ok {
		check.AlertOnFailure = v
	}
	if v, ok := meta["alert_on_miss"].(bool); ok {
		check.AlertOnMiss = v
	}
	if v, ok := numeric(meta["grace_seconds"]); ok && v >= 0 {
		check.GraceSeconds = int(v)
	}
}

func (e *Engine) applyNextScheduled(check *store.Check, event *store.Event) {
	meta := event.MetadataMap()
	raw, ok := meta["next_run_at"].(string)
	if !ok || raw == "" {
		check.ExpectedNextAt = nil
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		e.log.Info("unparseable next_run_at", "job", event.JobName, "value", raw)
		return
	}
	utc := at.UTC()
	check.ExpectedNextAt = &utc
}

// applyHeartbeat marks the job alive and resolves any open MISSED alert.
func (e *Engine) applyHeartbeat(ctx context.Context, check *store.Check, event *store.Event) error {
	at := event.EventAt.UTC()
	check.LastHeartbeatAt = &at
	check.Status = store.StatusUp

	closed, err := e.store.CloseOpenAlerts(ctx, check.JobName, store.AlertMissed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("close missed alerts for %s: %w", check.JobName, err)
	}
	if closed > 0 && check.Enabled && check.AlertOnMiss {
		alert := store.Alert{
			JobName:   check.JobName,
			Type:      store.AlertRecovery,
			Severity:  store.SeverityInfo,
			Title:     fmt.Sprintf("Job %s recovered", check.JobName),
			Message:   fmt.Sprintf("Job %s is reporting again.", check.JobName),
			DedupeKey: fmt.Sprintf("%s:RECOVERY:MISSED", check.JobName),
		}
		alert.SetDetails(map[string]any{"recovered_from": store.AlertMissed})
		_, err = e.store.OpenAlert(ctx, alert)
		if err != nil {
			return fmt.Errorf("open missed-recovery alert for %s: %w", check.JobName, err)
		}
		e.log.Info("job recovered from missed state", "job", check.JobName)
	}
	return nil
}

// applyOutcome handles success/failure bookkeeping and the FAILURE alert
// lifecycle.
func (e *Engine) applyOutcome(ctx context.Context, check *store.Check, event *store.Event) error {
	at := event.EventAt.UTC()
	failed := event.EventType == "job.failed" ||
		(event.EventType == "job.completed" && event.Success != nil && !*event.Success)

	if failed {
		check.ConsecutiveFailures++
		check.LastFailureAt = &at
		if check.Enabled && check.AlertOnFailure {
			alert := store.Alert{
				JobName:   check.JobName,
				Type:      store.AlertFailure,
				Severity:  store.SeverityError,
				Title:     fmt.Sprintf("Job %s failed", check.JobName),
				Message:   fmt.Sprintf("Job %s failed (%d consecutive).", check.JobName, check.ConsecutiveFailures),
				DedupeKey: fmt.Sprintf("%s:FAILURE", check.JobName),
			}
			details := map[string]any{"consecutive_failures": check.ConsecutiveFailures}
			if event.ReturnCode != nil {
				details["return_code"] = *event.ReturnCode
			}
			if event.RunID != "" {
				details["run_id"] = event.RunID
			}
			alert.SetDetails(details)
			_, err := e.store.OpenAlert(ctx, alert)
			if err != nil {
				return fmt.Errorf("open failure alert for %s: %w", check.JobName, err)
			}
		}
		return nil
	}

	if event.EventType == "job.completed" && event.Success != nil && *event.Success {
		check.LastSuccessAt = &at
		check.ConsecutiveFailures = 0
		if check.Enabled && check.AlertOnFailure {
			closed, err := e.store.CloseOpenAlerts(ctx, check.JobName, store.AlertFailure, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("close failure alerts for %s: %w", check.JobName, err)
			}
			if closed > 0 {
				alert := store.Alert{
					JobName:   check.JobName,
					Type:      store.AlertRecovery,
					Severity:  store.SeverityInfo,
					Title:     fmt.Sprintf("Job %s recovered", check.JobName),
					Message:   fmt.Sprintf("Job %s succeeded after failures.", check.JobName),
					DedupeKey: fmt.Sprintf("%s:RECOVERY:FAILURE", check.JobName),
				}
				alert.SetDetails(map[string]any{"recovered_from": store.AlertFailure})
				_, err = e.store.OpenAlert(ctx, alert)
				if err != nil {
					return fmt.Errorf("open failure-recovery alert for %s: %w", check.JobName, err)
				}
				e.log.Info("job recovered from failure state", "job", check.JobName)
			}
		}
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
