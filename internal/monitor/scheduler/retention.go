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
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/monitor/metrics"
	"github.com/chiefworks/chief/internal/monitor/store"
)

// Retention sweep defaults
const (
	DefaultRetentionInterval = time.Hour
	DefaultRetentionDays     = 30
)

// RetentionSweeper prunes old events. Alerts and check rows are never
// pruned.
type RetentionSweeper struct {
	store         store.Store
	log           logr.Logger
	interval      time.Duration
	retentionDays int
	stopCh        chan struct{}
	running       bool
	mu            sync.Mutex
}

// NewRetentionSweeper creates an event retention sweeper.
func NewRetentionSweeper(s store.Store, log logr.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		store:         s,
		log:           log,
		interval:      DefaultRetentionInterval,
		retentionDays: DefaultRetentionDays,
		stopCh:        make(chan struct{}),
	}
}

// SetInterval changes the sweep interval.
func (r *RetentionSweeper) SetInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.interval = d
	}
}

// SetRetentionDays changes how long events are kept.
func (r *RetentionSweeper) SetRetentionDays(days int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if days > 0 {
		r.retentionDays = days
	}
}

// Start begins the retention loop.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	interval := r.interval
	r.mu.Unlock()

	r.log.Info("starting retention sweeper", "interval", interval, "retentionDays", r.retentionDays)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			pruned, err := r.Sweep(ctx, time.Now().UTC())
			if err != nil {
				r.log.Error(err, "retention sweep failed")
				continue
			}
			if pruned > 0 {
				r.log.Info("pruned old events", "count", pruned)
			}
		}
	}
}

// Stop halts the retention loop.
func (r *RetentionSweeper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// Sweep prunes events older than the retention window once.
func (r *RetentionSweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	days := r.retentionDays
	r.mu.Unlock()
	pruned, err := r.store.PruneEvents(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		metrics.EventsPrunedTotal.Add(float64(pruned))
	}
	return pruned, nil
}
