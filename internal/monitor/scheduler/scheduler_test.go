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

package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefworks/chief/internal/monitor/store"
)

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	s, err := store.NewGormStore("sqlite", filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveCheck(t *testing.T, s *store.GormStore, jobName, status string, expectedNextAt time.Time, graceSeconds int, alertOnMiss bool) {
	t.Helper()
	require.NoError(t, s.SaveCheck(context.Background(), &store.Check{
		JobName:        jobName,
		Enabled:        true,
		AlertOnFailure: true,
		AlertOnMiss:    alertOnMiss,
		GraceSeconds:   graceSeconds,
		Status:         status,
		ExpectedNextAt: &expectedNextAt,
	}))
}

func TestEvaluatorMarksDownAndOpensMissed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	saveCheck(t, s, "etl", store.StatusUp, now.Add(-5*time.Minute), 120, true)

	e := NewEvaluator(s, logr.Discard())
	result, err := e.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Down)
	assert.Equal(t, 1, result.OpenedMissed)

	check, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDown, check.Status)

	open, err := s.HasOpenAlert(ctx, "etl", store.AlertMissed)
	require.NoError(t, err)
	assert.True(t, open)

	// A second sweep does not reopen or recount the transition.
	result, err = e.Sweep(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, result.OpenedMissed)
}

func TestEvaluatorMarksLateWithinGrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	saveCheck(t, s, "etl", store.StatusUp, now.Add(-time.Minute), 120, true)

	result, err := NewEvaluator(s, logr.Discard()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Late)
	assert.Equal(t, 0, result.Down)

	check, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	assert.Equal(t, store.StatusLate, check.Status)

	open, err := s.HasOpenAlert(ctx, "etl", store.AlertMissed)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestEvaluatorRestoresUpWhenAheadOfSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	saveCheck(t, s, "etl", store.StatusLate, now.Add(10*time.Minute), 120, true)

	result, err := NewEvaluator(s, logr.Discard()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Late)
	assert.Equal(t, 0, result.Down)

	check, err := s.GetCheck(ctx, "etl")
	require.NoError(t, err)
	assert.Equal(t, store.StatusUp, check.Status)
}

func TestEvaluatorHonorsAlertOnMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	saveCheck(t, s, "etl", store.StatusUp, now.Add(-time.Hour), 120, false)

	result, err := NewEvaluator(s, logr.Discard()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Down)
	assert.Equal(t, 0, result.OpenedMissed)

	open, err := s.HasOpenAlert(ctx, "etl", store.AlertMissed)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestEvaluatorSkipsDisabledAndUnscheduledChecks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	require.NoError(t, s.SaveCheck(ctx, &store.Check{
		JobName:        "disabled",
		Enabled:        false,
		GraceSeconds:   120,
		Status:         store.StatusUp,
		ExpectedNextAt: &past,
	}))
	require.NoError(t, s.SaveCheck(ctx, &store.Check{
		JobName:      "unscheduled",
		Enabled:      true,
		GraceSeconds: 120,
		Status:       store.StatusUp,
	}))

	result, err := NewEvaluator(s, logr.Discard()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestRetentionSweepPrunesOldEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := &store.Event{
		SourceType: "chief", EventType: "job.started", Level: "INFO",
		Message: "old", EventAt: now.AddDate(0, 0, -45), ReceivedAt: now, JobName: "etl",
	}
	fresh := &store.Event{
		SourceType: "chief", EventType: "job.started", Level: "INFO",
		Message: "fresh", EventAt: now.AddDate(0, 0, -2), ReceivedAt: now, JobName: "etl",
	}
	require.NoError(t, s.InsertEvent(ctx, old))
	require.NoError(t, s.InsertEvent(ctx, fresh))

	sweeper := NewRetentionSweeper(s, logr.Discard())
	pruned, err := sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, total, err := s.ListEvents(ctx, store.EventQuery{JobName: "etl"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRecoverySweepClosesExpiredAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.OpenAlert(ctx, store.Alert{
		JobName: "etl", Type: store.AlertRecovery,
		DedupeKey: "etl:RECOVERY:FAILURE", OpenedAt: now.Add(-20 * time.Minute),
	})
	require.NoError(t, err)
	_, err = s.OpenAlert(ctx, store.Alert{
		JobName: "report", Type: store.AlertRecovery,
		DedupeKey: "report:RECOVERY:MISSED", OpenedAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	sweeper := NewRecoverySweeper(s, logr.Discard())
	closed, err := sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	open, err := s.HasOpenAlert(ctx, "report", store.AlertRecovery)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestMissedAlertCarriesSeverityAndDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	expected := now.Add(-10 * time.Minute)

	saveCheck(t, s, "etl", store.StatusUp, expected, 120, true)

	_, err := NewEvaluator(s, logr.Discard()).Sweep(ctx, now)
	require.NoError(t, err)

	alerts, _, err := s.ListAlerts(ctx, store.AlertQuery{JobName: "etl", Type: store.AlertMissed})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.SeverityWarn, alerts[0].Severity)
	assert.Equal(t, "Job etl missed its run", alerts[0].Title)
	details := alerts[0].DetailsMap()
	assert.Equal(t, expected.Format(time.RFC3339), details["expected_next_at"])
	assert.EqualValues(t, 120, details["grace_seconds"])
}
