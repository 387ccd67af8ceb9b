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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureServer struct {
	mu      sync.Mutex
	batches [][]Event
	singles []Event
	apiKeys []string
	fail    bool
}

func (c *captureServer) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *captureServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.apiKeys = append(c.apiKeys, r.Header.Get("x-api-key"))
		if c.fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case "/v1/events/batch":
			var batch []Event
			if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			c.batches = append(c.batches, batch)
		case "/v1/events":
			var ev Event
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			c.singles = append(c.singles, ev)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (c *captureServer) totalEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func testSettings(serverURL, spool string) Settings {
	return Settings{
		Enabled:  true,
		Endpoint: serverURL,
		APIKey:   "sekrit",
		Timeout:  time.Second,
		Buffer: BufferSettings{
			MaxEvents:     50,
			FlushInterval: 20 * time.Millisecond,
			SpoolFile:     spool,
		},
	}
}

func testEvent(msg string) Event {
	return Event{
		SourceType: SourceChief,
		EventType:  EventHeartbeat,
		Level:      LevelInfo,
		Message:    msg,
		EventAt:    time.Now().UTC(),
	}
}

func TestEmitterShipsBatches(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	spool := filepath.Join(t.TempDir(), "spool.jsonl")
	emitter := NewEmitter(testSettings(server.URL, spool), logr.Discard())
	for i := 0; i < 5; i++ {
		emitter.Emit(testEvent("ping"))
	}
	emitter.Close()

	assert.Equal(t, 5, capture.totalEvents())
	assert.Equal(t, int64(0), emitter.Dropped())

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.NotEmpty(t, capture.apiKeys)
	assert.Equal(t, "sekrit", capture.apiKeys[0])

	_, err := os.Stat(spool)
	assert.True(t, os.IsNotExist(err))
}

func TestEmitterDropsOnOverflow(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	settings := testSettings(server.URL, filepath.Join(t.TempDir(), "spool.jsonl"))
	settings.Buffer.MaxEvents = 2
	settings.Buffer.FlushInterval = time.Hour
	emitter := NewEmitter(settings, logr.Discard())

	for i := 0; i < 10; i++ {
		emitter.Emit(testEvent("burst"))
	}
	assert.Equal(t, int64(8), emitter.Dropped())
	emitter.Close()
	assert.Equal(t, 2, capture.totalEvents())
}

func TestEmitterSpoolsOnFailureAndReplays(t *testing.T) {
	capture := &captureServer{fail: true}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	spool := filepath.Join(t.TempDir(), "spool.jsonl")
	settings := testSettings(server.URL, spool)
	emitter := NewEmitter(settings, logr.Discard())

	emitter.Emit(testEvent("will-spool"))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(spool)
		return err == nil && strings.Contains(string(data), "will-spool")
	}, 2*time.Second, 10*time.Millisecond)

	capture.setFail(false)
	require.Eventually(t, func() bool {
		return capture.totalEvents() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	emitter.Close()
	_, err := os.Stat(spool)
	assert.True(t, os.IsNotExist(err))
}

func TestEmitterDisabledIsNoop(t *testing.T) {
	emitter := NewEmitter(Settings{Enabled: false}, logr.Discard())
	emitter.Emit(testEvent("ignored"))
	emitter.Close()
	assert.False(t, emitter.Enabled())
	assert.Equal(t, int64(0), emitter.Dropped())
}

func TestEventNormalizeForcesUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, loc)

	ev := Event{EventAt: at, ScheduledFor: Time(at)}
	norm := ev.Normalize()
	assert.Equal(t, time.UTC, norm.EventAt.Location())
	assert.Equal(t, time.UTC, norm.ScheduledFor.Location())
	assert.True(t, norm.EventAt.Equal(at))
}

func TestEventJSONOmitsNullOptionalFields(t *testing.T) {
	data, err := json.Marshal(testEvent("hi"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"sourceType":"chief"`)
	assert.NotContains(t, text, "returnCode")
	assert.NotContains(t, text, "scheduledFor")
	assert.NotContains(t, text, "metadata")
}

func TestClientPostsWorkerMessage(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	t.Setenv(EnvMonitorEndpoint, server.URL)
	t.Setenv(EnvRunID, "etl:20260105000000-000001-42")
	t.Setenv(EnvJobName, "etl")
	t.Setenv(EnvScriptPath, "/opt/etl/task.sh")
	t.Setenv(EnvScheduledFor, "2026-01-05T08:30:00Z")
	t.Setenv(EnvMonitorAPIKey, "sekrit")

	client := NewClient("", "", 0)
	require.True(t, client.Enabled())
	ok := client.Error("load failed", map[string]any{"rows": 0})
	require.True(t, ok)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.singles, 1)
	ev := capture.singles[0]
	assert.Equal(t, SourceWorker, ev.SourceType)
	assert.Equal(t, EventWorkerMessage, ev.EventType)
	assert.Equal(t, LevelError, ev.Level)
	assert.Equal(t, "load failed", ev.Message)
	assert.Equal(t, "etl", ev.JobName)
	assert.Equal(t, "etl:20260105000000-000001-42", ev.RunID)
	require.NotNil(t, ev.ScheduledFor)
	assert.Equal(t, "sekrit", capture.apiKeys[0])
}

func TestClientWithoutEndpointReportsFalse(t *testing.T) {
	t.Setenv(EnvMonitorEndpoint, "")
	client := NewClient("", "", 0)
	assert.False(t, client.Enabled())
	assert.False(t, client.Info("nobody home", nil))
}

func TestEmitterFlushesEarlyOnBatchThreshold(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	settings := testSettings(server.URL, filepath.Join(t.TempDir(), "spool.jsonl"))
	settings.Buffer.MaxEvents = flushBatchSize * 2
	// The interval alone would never fire inside the test window.
	settings.Buffer.FlushInterval = time.Hour
	emitter := NewEmitter(settings, logr.Discard())

	for i := 0; i < flushBatchSize; i++ {
		emitter.Emit(testEvent("burst"))
	}

	require.Eventually(t, func() bool {
		return capture.totalEvents() >= flushBatchSize
	}, 5*time.Second, 10*time.Millisecond, "full batch must flush before the interval elapses")

	emitter.Close()
	assert.Equal(t, int64(0), emitter.Dropped())
}
