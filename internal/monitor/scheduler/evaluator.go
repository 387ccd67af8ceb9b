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

// Package scheduler hosts the monitor's periodic sweeps: lateness
// evaluation, event retention, and recovery-alert expiry.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/monitor/metrics"
	"github.com/chiefworks/chief/internal/monitor/store"
)

// DefaultEvaluatorInterval is the lateness sweep cadence.
const DefaultEvaluatorInterval = 15 * time.Second

// SweepResult reports one evaluator pass.
type SweepResult struct {
	Late         int
	Down         int
	OpenedMissed int
}

// Evaluator periodically grades every enabled check against its expected
// next run.
type Evaluator struct {
	store    store.Store
	log      logr.Logger
	interval time.Duration
	stopCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewEvaluator creates a lateness evaluator.
func NewEvaluator(s store.Store, log logr.Logger) *Evaluator {
	return &Evaluator{
		store:    s,
		log:      log,
		interval: DefaultEvaluatorInterval,
		stopCh:   make(chan struct{}),
	}
}

// SetInterval changes the sweep interval.
func (e *Evaluator) SetInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.interval = d
	}
}

// Start begins the evaluator loop.
func (e *Evaluator) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	interval := e.interval
	e.mu.Unlock()

	e.log.Info("starting evaluator", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			result, err := e.Sweep(ctx, time.Now().UTC())
			if err != nil {
				e.log.Error(err, "evaluator sweep failed")
				continue
			}
			if result.Late > 0 || result.Down > 0 {
				e.log.Info("evaluator sweep",
					"late", result.Late, "down", result.Down, "openedMissed", result.OpenedMissed)
			}
		}
	}
}

// Stop halts the evaluator loop.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// Sweep grades every enabled check once against the given instant.
func (e *Evaluator) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	checks, err := e.store.ListChecks(ctx)
	if err != nil {
		return result, fmt.Errorf("list checks: %w", err)
	}

	for i := range checks {
		check := &checks[i]
		if !check.Enabled || check.ExpectedNextAt == nil {
			continue
		}
		diff := now.Sub(*check.ExpectedNextAt)
		grace := time.Duration(check.GraceSeconds) * time.Second

		switch {
		case diff > grace:
			result.Down++
			if check.Status == store.StatusDown {
				continue
			}
			check.Status = store.StatusDown
			if check.AlertOnMiss {
				alert := store.Alert{
					JobName:  check.JobName,
					Type:     store.AlertMissed,
					Severity: store.SeverityWarn,
					Title:    fmt.Sprintf("Job %s missed its run", check.JobName),
					Message: fmt.Sprintf("Job %s missed its expected run at %s.",
						check.JobName, check.ExpectedNextAt.Format(time.RFC3339)),
					DedupeKey: fmt.Sprintf("%s:MISSED", check.JobName),
					OpenedAt:  now,
				}
				alert.SetDetails(map[string]any{
					"expected_next_at": check.ExpectedNextAt.Format(time.RFC3339),
					"grace_seconds":    check.GraceSeconds,
				})
				opened, err := e.store.OpenAlert(ctx, alert)
				if err != nil {
					return result, fmt.Errorf("open missed alert for %s: %w", check.JobName, err)
				}
				if opened {
					result.OpenedMissed++
				}
			}
		case diff > 0:
			result.Late++
			if check.Status == store.StatusLate {
				continue
			}
			check.Status = store.StatusLate
		default:
			if check.Status == store.StatusUp {
				continue
			}
			check.Status = store.StatusUp
		}

		if err := e.store.SaveCheck(ctx, check); err != nil {
			return result, fmt.Errorf("save check for %s: %w", check.JobName, err)
		}
		metrics.UpdateCheckStatus(check.JobName, check.Status)
	}
	metrics.EvaluatorSweepsTotal.Inc()
	return result, nil
}
