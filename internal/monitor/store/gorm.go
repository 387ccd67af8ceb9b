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
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite" // Pure Go SQLite driver (no CGO required)
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements Store using GORM
type GormStore struct {
	db      *gorm.DB
	dialect string
}

// NewGormStore creates a new GORM-based store
func NewGormStore(dialect string, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &GormStore{db: db, dialect: dialect}, nil
}

// Init initializes the store (creates tables via auto-migration)
func (s *GormStore) Init() error {
	return s.db.AutoMigrate(&Event{}, &Check{}, &Alert{})
}

// Close closes the store and releases resources
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the store is healthy
func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InsertEvent persists an accepted event
func (s *GormStore) InsertEvent(ctx context.Context, event *Event) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// ListEvents returns events matching the query, newest first
func (s *GormStore) ListEvents(ctx context.Context, q EventQuery) ([]Event, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	query := s.db.WithContext(ctx).Model(&Event{})
	if q.JobName != "" {
		query = query.Where("job_name = ?", q.JobName)
	}
	if q.EventType != "" {
		query = query.Where("event_type = ?", q.EventType)
	}
	if q.Since != nil {
		query = query.Where("event_at >= ?", *q.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []Event
	err := query.Order("event_at DESC, id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&events).Error
	return events, total, err
}

// LatestEventForJob returns the most recent event for a job, nil if none
func (s *GormStore) LatestEventForJob(ctx context.Context, jobName string) (*Event, error) {
	var event Event
	err := s.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("event_at DESC, id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// PruneEvents removes events with event_at older than the cutoff
func (s *GormStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("event_at < ?", olderThan).
		Delete(&Event{})
	return result.RowsAffected, result.Error
}

// GetCheck returns the check row for a job, nil if absent
func (s *GormStore) GetCheck(ctx context.Context, jobName string) (*Check, error) {
	var check Check
	err := s.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		First(&check).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// SaveCheck upserts a check row keyed by job name
func (s *GormStore) SaveCheck(ctx context.Context, check *Check) error {
	if check.ID != 0 {
		return s.db.WithContext(ctx).Save(check).Error
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_name"}},
			UpdateAll: true,
		}).
		Create(check).Error
}

// ListChecks returns all check rows ordered by job name
func (s *GormStore) ListChecks(ctx context.Context) ([]Check, error) {
	var checks []Check
	err := s.db.WithContext(ctx).Order("job_name ASC").Find(&checks).Error
	return checks, err
}

// OpenAlert opens an alert unless one with the same dedupe key is already
// open. The single-writer discipline of the monitor makes the
// check-then-insert race-free.
func (s *GormStore) OpenAlert(ctx context.Context, alert Alert) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Alert{}).
			Where("dedupe_key = ? AND status = ?", alert.DedupeKey, AlertOpen).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		alert.Status = AlertOpen
		if alert.OpenedAt.IsZero() {
			alert.OpenedAt = time.Now().UTC()
		}
		if alert.Severity == "" {
			switch alert.Type {
			case AlertFailure:
				alert.Severity = SeverityError
			case AlertMissed:
				alert.Severity = SeverityWarn
			default:
				alert.Severity = SeverityInfo
			}
		}
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// HasOpenAlert reports whether an OPEN alert of the given type exists
func (s *GormStore) HasOpenAlert(ctx context.Context, jobName, alertType string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Alert{}).
		Where("job_name = ? AND alert_type = ? AND status = ?", jobName, alertType, AlertOpen).
		Count(&count).Error
	return count > 0, err
}

// CloseOpenAlerts closes all OPEN alerts of the given type for the job
func (s *GormStore) CloseOpenAlerts(ctx context.Context, jobName, alertType string, closedAt time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Alert{}).
		Where("job_name = ? AND alert_type = ? AND status = ?", jobName, alertType, AlertOpen).
		Updates(map[string]any{"status": AlertClosed, "closed_at": closedAt})
	return result.RowsAffected, result.Error
}

// CloseRecoveryAlertsBefore closes OPEN RECOVERY alerts opened before the
// cutoff
func (s *GormStore) CloseRecoveryAlertsBefore(ctx context.Context, cutoff, closedAt time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Alert{}).
		Where("alert_type = ? AND status = ? AND opened_at < ?", AlertRecovery, AlertOpen, cutoff).
		Updates(map[string]any{"status": AlertClosed, "closed_at": closedAt})
	return result.RowsAffected, result.Error
}

// ListAlerts returns alerts matching the query, newest first
func (s *GormStore) ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	query := s.db.WithContext(ctx).Model(&Alert{})
	if q.JobName != "" {
		query = query.Where("job_name = ?", q.JobName)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Type != "" {
		query = query.Where("alert_type = ?", q.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []Alert
	err := query.Order("opened_at DESC, id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&alerts).Error
	return alerts, total, err
}

// CountOpenAlerts returns the number of OPEN alerts per type
func (s *GormStore) CountOpenAlerts(ctx context.Context) (map[string]int64, error) {
	type row struct {
		AlertType string
		Total     int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Alert{}).
		Select("alert_type, COUNT(*) AS total").
		Where("status = ?", AlertOpen).
		Group("alert_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.AlertType] = r.Total
	}
	return counts, nil
}
