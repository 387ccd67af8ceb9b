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

package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Defaults for the emitter buffer
const (
	DefaultEndpoint      = "http://127.0.0.1:7410"
	DefaultTimeout       = 400 * time.Millisecond
	DefaultMaxEvents     = 5000
	DefaultFlushInterval = 1 * time.Second
	DefaultSpoolFile     = ".chief/telemetry_spool.jsonl"

	flushBatchSize  = 250
	replayBatchSize = 250
	closeBatchSize  = 10000
)

// BufferSettings configures the emitter's in-memory buffer and disk spool.
type BufferSettings struct {
	MaxEvents     int
	FlushInterval time.Duration
	SpoolFile     string
}

// Settings configures the telemetry emitter.
type Settings struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Buffer   BufferSettings
}

// DefaultSettings returns emitter settings with telemetry disabled.
func DefaultSettings(baseDir string) Settings {
	return Settings{
		Enabled:  false,
		Endpoint: DefaultEndpoint,
		Timeout:  DefaultTimeout,
		Buffer: BufferSettings{
			MaxEvents:     DefaultMaxEvents,
			FlushInterval: DefaultFlushInterval,
			SpoolFile:     filepath.Join(baseDir, DefaultSpoolFile),
		},
	}
}

// Emitter ships telemetry events to the monitor on a best-effort basis.
// Emit never blocks: when the buffer is full the event is dropped and
// counted. A background flusher batches events to /v1/events/batch and falls
// back to a JSONL spool file when the monitor is unreachable.
type Emitter struct {
	settings Settings
	log      logr.Logger
	client   *http.Client

	ch      chan Event
	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64

	spoolMu   sync.Mutex
	closeOnce sync.Once
}

// NewEmitter creates an emitter and starts its flusher when enabled.
func NewEmitter(settings Settings, log logr.Logger) *Emitter {
	if settings.Buffer.MaxEvents <= 0 {
		settings.Buffer.MaxEvents = DefaultMaxEvents
	}
	if settings.Buffer.FlushInterval <= 0 {
		settings.Buffer.FlushInterval = DefaultFlushInterval
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	e := &Emitter{
		settings: settings,
		log:      log,
		client:   &http.Client{Timeout: settings.Timeout},
		ch:       make(chan Event, settings.Buffer.MaxEvents),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if settings.Enabled {
		go e.run()
	}
	return e
}

// Enabled reports whether the emitter ships events anywhere.
func (e *Emitter) Enabled() bool { return e.settings.Enabled }

// Settings returns the emitter configuration.
func (e *Emitter) Settings() Settings { return e.settings }

// Dropped returns the number of events discarded due to buffer overflow.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Emit offers an event to the buffer. It never blocks and never returns an
// error; overflow drops the event.
func (e *Emitter) Emit(event Event) {
	if !e.settings.Enabled || e.closed.Load() {
		return
	}
	select {
	case e.ch <- event.Normalize():
		// Wake the flusher early once a full batch is buffered.
		if len(e.ch) >= flushBatchSize {
			select {
			case e.wakeCh <- struct{}{}:
			default:
			}
		}
	default:
		n := e.dropped.Add(1)
		e.log.V(1).Info("telemetry buffer full, dropping event", "dropped", n)
	}
}

// Close stops accepting events, flushes the buffer once, attempts one spool
// replay, and returns.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if !e.settings.Enabled {
			return
		}
		close(e.stopCh)
		select {
		case <-e.doneCh:
		case <-time.After(2 * time.Second):
		}
		if batch := e.collect(closeBatchSize); len(batch) > 0 {
			if err := e.send(batch); err != nil {
				e.spool(batch)
			}
		}
		e.replaySpool(replayBatchSize)
	})
}

func (e *Emitter) run() {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.settings.Buffer.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.wakeCh:
			e.flushOnce()
		case <-ticker.C:
			e.flushOnce()
		}
	}
}

func (e *Emitter) flushOnce() {
	if batch := e.collect(flushBatchSize); len(batch) > 0 {
		if err := e.send(batch); err != nil {
			e.log.V(1).Info("telemetry send failed, spooling batch", "events", len(batch), "reason", err.Error())
			e.spool(batch)
		}
	}
	e.replaySpool(replayBatchSize)
}

func (e *Emitter) collect(limit int) []Event {
	var batch []Event
	for len(batch) < limit {
		select {
		case ev := <-e.ch:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (e *Emitter) send(batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	url := strings.TrimRight(e.settings.Endpoint, "/") + "/v1/events/batch"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.settings.APIKey != "" {
		req.Header.Set("x-api-key", e.settings.APIKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("monitor returned status %d", resp.StatusCode)
	}
	return nil
}

// spool appends the batch as newline-delimited JSON, one full event per line.
func (e *Emitter) spool(batch []Event) {
	e.spoolMu.Lock()
	defer e.spoolMu.Unlock()

	path := e.settings.Buffer.SpoolFile
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.log.V(1).Info("cannot create spool directory", "path", path, "reason", err.Error())
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		e.log.V(1).Info("cannot open spool file", "path", path, "reason", err.Error())
		return
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	for _, ev := range batch {
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		e.log.V(1).Info("spool write failed", "path", path, "reason", err.Error())
	}
}

// replaySpool re-sends a prefix of the spool file. The consumed prefix is
// removed only when the send succeeds (or contains no parseable events).
func (e *Emitter) replaySpool(limit int) {
	e.spoolMu.Lock()
	defer e.spoolMu.Unlock()

	path := e.settings.Buffer.SpoolFile
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return
	}

	replay := lines
	if len(replay) > limit {
		replay = lines[:limit]
	}
	remaining := lines[len(replay):]

	var batch []Event
	for _, line := range replay {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		batch = append(batch, ev)
	}

	if len(batch) > 0 {
		if err := e.send(batch); err != nil {
			return
		}
	}
	e.rewriteSpool(path, remaining)
}

func (e *Emitter) rewriteSpool(path string, remaining []string) {
	if len(remaining) == 0 {
		_ = os.Remove(path)
		return
	}
	content := strings.Join(remaining, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.log.V(1).Info("spool rewrite failed", "path", path, "reason", err.Error())
	}
}
