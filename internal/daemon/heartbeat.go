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

package daemon

import (
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/telemetry"
)

// DefaultHeartbeatInterval is the liveness ping cadence.
const DefaultHeartbeatInterval = 15 * time.Second

// Heartbeat modes reported in event metadata
const (
	ModeRun    = "run"
	ModeDaemon = "daemon"
)

// Heartbeat periodically emits chief.heartbeat events so the monitor can
// distinguish a quiet orchestrator from a dead one. The first ping fires
// immediately on start.
type Heartbeat struct {
	emitter  *telemetry.Emitter
	log      logr.Logger
	interval time.Duration
	mode     string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHeartbeat creates a heartbeat ticker for the given mode.
func NewHeartbeat(emitter *telemetry.Emitter, log logr.Logger, interval time.Duration, mode string) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		emitter:  emitter,
		log:      log,
		interval: interval,
		mode:     mode,
	}
}

// Start launches the ticker goroutine. Starting a running heartbeat is a
// no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.emitter == nil || !h.emitter.Enabled() {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	go h.run(h.stopCh, h.doneCh)
	h.log.Info("heartbeat started", "intervalSeconds", int(h.interval/time.Second), "mode", h.mode)
}

// Stop terminates the ticker and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	doneCh := h.doneCh
	h.mu.Unlock()
	<-doneCh
}

func (h *Heartbeat) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	h.ping()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Heartbeat) ping() {
	h.emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventHeartbeat,
		Level:      telemetry.LevelInfo,
		Message:    "chief heartbeat",
		EventAt:    time.Now().UTC(),
		Metadata: map[string]any{
			"ping_interval_seconds": int(h.interval / time.Second),
			"mode":                  h.mode,
			"pid":                   os.Getpid(),
		},
	})
}
