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

	"github.com/chiefworks/chief/internal/monitor/store"
)

// DefaultRecoveryTTL is how long a RECOVERY alert stays open before
// auto-closing.
const DefaultRecoveryTTL = 15 * time.Minute

// RecoverySweeper auto-closes RECOVERY alerts after a TTL. Recovery alerts
// are informational; without this sweep they would stay open forever since
// nothing else closes them.
type RecoverySweeper struct {
	store    store.Store
	log      logr.Logger
	interval time.Duration
	ttl      time.Duration
	stopCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewRecoverySweeper creates a recovery-alert expiry sweeper.
func NewRecoverySweeper(s store.Store, log logr.Logger) *RecoverySweeper {
	return &RecoverySweeper{
		store:    s,
		log:      log,
		interval: DefaultEvaluatorInterval,
		ttl:      DefaultRecoveryTTL,
		stopCh:   make(chan struct{}),
	}
}

// SetInterval changes the sweep interval.
func (r *RecoverySweeper) SetInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.interval = d
	}
}

// SetTTL changes the recovery-alert lifetime.
func (r *RecoverySweeper) SetTTL(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.ttl = d
	}
}

// Start begins the recovery expiry loop.
func (r *RecoverySweeper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	interval := r.interval
	r.mu.Unlock()

	r.log.Info("starting recovery sweeper", "interval", interval, "ttl", r.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			closed, err := r.Sweep(ctx, time.Now().UTC())
			if err != nil {
				r.log.Error(err, "recovery sweep failed")
				continue
			}
			if closed > 0 {
				r.log.Info("expired recovery alerts", "count", closed)
			}
		}
	}
}

// Stop halts the recovery expiry loop.
func (r *RecoverySweeper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// Sweep closes OPEN RECOVERY alerts older than the TTL once.
func (r *RecoverySweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	ttl := r.ttl
	r.mu.Unlock()
	return r.store.CloseRecoveryAlertsBefore(ctx, now.Add(-ttl), now)
}
