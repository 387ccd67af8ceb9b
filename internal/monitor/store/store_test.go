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
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertEvent(t *testing.T, s *GormStore, jobName, eventType string, at time.Time) *Event {
	t.Helper()
	ev := &Event{
		SourceType: "chief",
		EventType:  eventType,
		Level:      "INFO",
		Message:    eventType + " for " + jobName,
		EventAt:    at,
		ReceivedAt: time.Now().UTC(),
		JobName:    jobName,
	}
	require.NoError(t, s.InsertEvent(context.Background(), ev))
	return ev
}

func TestInsertAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	insertEvent(t, s, "etl", "job.started", base)
	insertEvent(t, s, "etl", "job.completed", base.Add(time.Minute))
	insertEvent(t, s, "report", "job.started", base.Add(2*time.Minute))

	events, total, err := s.ListEvents(ctx, EventQuery{JobName: "etl"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, events, 2)
	assert.Equal(t, "job.completed", events[0].EventType)

	events, total, err = s.ListEvents(ctx, EventQuery{EventType: "job.started"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, events, 2)

	events, _, err = s.ListEvents(ctx, EventQuery{JobName: "etl", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "job.completed", events[0].EventType)
}

func TestLatestEventForJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	insertEvent(t, s, "etl", "job.started", base)
	insertEvent(t, s, "etl", "job.completed", base.Add(time.Minute))

	latest, err := s.LatestEventForJob(ctx, "etl")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "job.completed", latest.EventType)

	missing, err := s.LatestEventForJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertEvent(t, s, "etl", "job.started", now.AddDate(0, 0, -40))
	insertEvent(t, s, "etl", "job.started", now.AddDate(0, 0, -1))

	pruned, err := s.PruneEvents(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, total, err := s.ListEvents(ctx, EventQuery{JobName: "etl"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCheckUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	assert.Nil(t, missing)

	check := &Check{
		JobName:        "etl",
		Enabled:        true,
		AlertOnFailure: true,
		AlertOnMiss:    true,
		GraceSeconds:   120,
		Status:         StatusUp,
	}
	require.NoError(t, s.SaveCheck(ctx, check))

	loaded, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusUp, loaded.Status)

	loaded.Status = StatusDown
	loaded.ConsecutiveFailures = 3
	require.NoError(t, s.SaveCheck(ctx, loaded))

	reloaded, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	assert.Equal(t, StatusDown, reloaded.Status)
	assert.Equal(t, 3, reloaded.ConsecutiveFailures)

	checks, err := s.ListChecks(ctx)
	require.NoError(t, err)
	assert.Len(t, checks, 1)
}

func TestOpenAlertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := Alert{
		JobName:   "etl",
		Type:      AlertFailure,
		Message:   "job failed",
		DedupeKey: "etl:FAILURE",
	}
	created, err := s.OpenAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.OpenAlert(ctx, alert)
	require.NoError(t, err)
	assert.False(t, created)

	open, err := s.HasOpenAlert(ctx, "etl", AlertFailure)
	require.NoError(t, err)
	assert.True(t, open)

	closed, err := s.CloseOpenAlerts(ctx, "etl", AlertFailure, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	// After closing, the same key may open again.
	created, err = s.OpenAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCloseRecoveryAlertsBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.OpenAlert(ctx, Alert{
		JobName:   "etl",
		Type:      AlertRecovery,
		DedupeKey: "etl:RECOVERY:FAILURE",
		OpenedAt:  now.Add(-30 * time.Minute),
	})
	require.NoError(t, err)
	_, err = s.OpenAlert(ctx, Alert{
		JobName:   "report",
		Type:      AlertRecovery,
		DedupeKey: "report:RECOVERY:MISSED",
		OpenedAt:  now.Add(-5 * time.Minute),
	})
	require.NoError(t, err)

	closed, err := s.CloseRecoveryAlertsBefore(ctx, now.Add(-15*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	open, err := s.HasOpenAlert(ctx, "report", AlertRecovery)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestListAlertsAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenAlert(ctx, Alert{JobName: "etl", Type: AlertFailure, DedupeKey: "etl:FAILURE"})
	require.NoError(t, err)
	_, err = s.OpenAlert(ctx, Alert{JobName: "etl", Type: AlertMissed, DedupeKey: "etl:MISSED"})
	require.NoError(t, err)

	alerts, total, err := s.ListAlerts(ctx, AlertQuery{JobName: "etl"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, alerts, 2)

	alerts, _, err = s.ListAlerts(ctx, AlertQuery{Type: AlertMissed})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "etl", alerts[0].JobName)

	counts, err := s.CountOpenAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[AlertFailure])
	assert.Equal(t, int64(1), counts[AlertMissed])
}

func TestEventMetadataRoundTrip(t *testing.T) {
	ev := &Event{}
	ev.SetMetadata(map[string]any{"next_run_at": "2026-01-05T10:30:00Z", "check_enabled": true})
	m := ev.MetadataMap()
	assert.Equal(t, "2026-01-05T10:30:00Z", m["next_run_at"])
	assert.Equal(t, true, m["check_enabled"])

	empty := &Event{Metadata: "not json"}
	assert.Empty(t, empty.MetadataMap())
}

func TestAlertSeverityTitleDetailsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := Alert{
		JobName:   "etl",
		Type:      AlertFailure,
		Severity:  SeverityError,
		Title:     "Job etl failed",
		Message:   "Job etl failed (3 consecutive).",
		DedupeKey: "etl:FAILURE",
	}
	alert.SetDetails(map[string]any{"consecutive_failures": 3, "return_code": 2})

	created, err := s.OpenAlert(ctx, alert)
	require.NoError(t, err)
	require.True(t, created)

	alerts, _, err := s.ListAlerts(ctx, AlertQuery{JobName: "etl"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityError, alerts[0].Severity)
	assert.Equal(t, "Job etl failed", alerts[0].Title)
	details := alerts[0].DetailsMap()
	assert.EqualValues(t, 3, details["consecutive_failures"])
	assert.EqualValues(t, 2, details["return_code"])
}

func TestOpenAlertDefaultsSeverityByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenAlert(ctx, Alert{JobName: "a", Type: AlertFailure, DedupeKey: "a:FAILURE"})
	require.NoError(t, err)
	_, err = s.OpenAlert(ctx, Alert{JobName: "a", Type: AlertMissed, DedupeKey: "a:MISSED"})
	require.NoError(t, err)
	_, err = s.OpenAlert(ctx, Alert{JobName: "a", Type: AlertRecovery, DedupeKey: "a:RECOVERY:FAILURE"})
	require.NoError(t, err)

	alerts, _, err := s.ListAlerts(ctx, AlertQuery{JobName: "a"})
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	bySeverity := map[string]string{}
	for _, a := range alerts {
		bySeverity[a.Type] = a.Severity
	}
	assert.Equal(t, SeverityError, bySeverity[AlertFailure])
	assert.Equal(t, SeverityWarn, bySeverity[AlertMissed])
	assert.Equal(t, SeverityInfo, bySeverity[AlertRecovery])
}
