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
	"time"
)

// Store defines the storage interface for events, checks, and alerts
type Store interface {
	// Init initializes the store (creates tables, connections, etc.)
	Init() error

	// Close closes the store and releases resources
	Close() error

	// Health checks if the store is healthy
	Health(ctx context.Context) error

	// InsertEvent persists an accepted event
	InsertEvent(ctx context.Context, event *Event) error

	// ListEvents returns events matching the query, newest first, with the
	// total match count
	ListEvents(ctx context.Context, q EventQuery) ([]Event, int64, error)

	// LatestEventForJob returns the most recent event for a job, nil if none
	LatestEventForJob(ctx context.Context, jobName string) (*Event, error)

	// PruneEvents removes events with event_at older than the cutoff
	PruneEvents(ctx context.Context, olderThan time.Time) (int64, error)

	// GetCheck returns the check row for a job, nil if absent
	GetCheck(ctx context.Context, jobName string) (*Check, error)

	// SaveCheck upserts a check row keyed by job name
	SaveCheck(ctx context.Context, check *Check) error

	// ListChecks returns all check rows ordered by job name
	ListChecks(ctx context.Context) ([]Check, error)

	// OpenAlert opens an alert unless one with the same dedupe key is
	// already open; reports whether a row was created
	OpenAlert(ctx context.Context, alert Alert) (bool, error)

	// HasOpenAlert reports whether an OPEN alert of the given type exists
	// for the job
	HasOpenAlert(ctx context.Context, jobName, alertType string) (bool, error)

	// CloseOpenAlerts closes all OPEN alerts of the given type for the job
	CloseOpenAlerts(ctx context.Context, jobName, alertType string, closedAt time.Time) (int64, error)

	// CloseRecoveryAlertsBefore closes OPEN RECOVERY alerts opened before
	// the cutoff
	CloseRecoveryAlertsBefore(ctx context.Context, cutoff, closedAt time.Time) (int64, error)

	// ListAlerts returns alerts matching the query, newest first, with the
	// total match count
	ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, int64, error)

	// CountOpenAlerts returns the number of OPEN alerts per type
	CountOpenAlerts(ctx context.Context) (map[string]int64, error)
}
