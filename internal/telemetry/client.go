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
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment variables injected into worker subprocesses
const (
	EnvRunID           = "CHIEF_RUN_ID"
	EnvJobName         = "CHIEF_JOB_NAME"
	EnvScriptPath      = "CHIEF_SCRIPT_PATH"
	EnvScheduledFor    = "CHIEF_SCHEDULED_FOR"
	EnvMonitorEndpoint = "CHIEF_MONITOR_ENDPOINT"
	EnvMonitorAPIKey   = "CHIEF_MONITOR_API_KEY"
)

// Context carries the correlation fields a worker inherits from its
// environment.
type Context struct {
	Endpoint     string
	APIKey       string
	RunID        string
	JobName      string
	ScriptPath   string
	ScheduledFor string
}

// ContextFromEnv reads the CHIEF_* environment injected by the executor.
func ContextFromEnv() Context {
	return Context{
		Endpoint:     strings.TrimSpace(os.Getenv(EnvMonitorEndpoint)),
		APIKey:       strings.TrimSpace(os.Getenv(EnvMonitorAPIKey)),
		RunID:        strings.TrimSpace(os.Getenv(EnvRunID)),
		JobName:      strings.TrimSpace(os.Getenv(EnvJobName)),
		ScriptPath:   strings.TrimSpace(os.Getenv(EnvScriptPath)),
		ScheduledFor: strings.TrimSpace(os.Getenv(EnvScheduledFor)),
	}
}

// Client posts single worker events to the monitor's /v1/events endpoint.
// All methods are fire-and-forget: a false return means the event was not
// delivered, and the worker carries on regardless.
type Client struct {
	ctx    Context
	client *http.Client
}

// NewClient builds a worker client from the process environment. An explicit
// endpoint or API key overrides the environment.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	ctx := ContextFromEnv()
	if strings.TrimSpace(endpoint) != "" {
		ctx.Endpoint = strings.TrimSpace(endpoint)
	}
	if strings.TrimSpace(apiKey) != "" {
		ctx.APIKey = strings.TrimSpace(apiKey)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{ctx: ctx, client: &http.Client{Timeout: timeout}}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.ctx.Endpoint != "" }

// Debug posts a DEBUG-level worker message.
func (c *Client) Debug(message string, meta map[string]any) bool {
	return c.post(LevelDebug, message, meta)
}

// Info posts an INFO-level worker message.
func (c *Client) Info(message string, meta map[string]any) bool {
	return c.post(LevelInfo, message, meta)
}

// Warn posts a WARN-level worker message.
func (c *Client) Warn(message string, meta map[string]any) bool {
	return c.post(LevelWarn, message, meta)
}

// Error posts an ERROR-level worker message.
func (c *Client) Error(message string, meta map[string]any) bool {
	return c.post(LevelError, message, meta)
}

// Critical posts a CRITICAL-level worker message.
func (c *Client) Critical(message string, meta map[string]any) bool {
	return c.post(LevelCritical, message, meta)
}

func (c *Client) post(level, message string, meta map[string]any) bool {
	if c.ctx.Endpoint == "" || strings.TrimSpace(message) == "" {
		return false
	}
	if meta == nil {
		meta = map[string]any{}
	}
	ev := Event{
		SourceType: SourceWorker,
		EventType:  EventWorkerMessage,
		Level:      level,
		Message:    strings.TrimSpace(message),
		EventAt:    time.Now().UTC(),
		JobName:    c.ctx.JobName,
		ScriptPath: c.ctx.ScriptPath,
		RunID:      c.ctx.RunID,
		Metadata:   meta,
	}
	if c.ctx.ScheduledFor != "" {
		if t, err := time.Parse(time.RFC3339, c.ctx.ScheduledFor); err == nil {
			ev.ScheduledFor = Time(t)
		}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	url := strings.TrimRight(c.ctx.Endpoint, "/") + "/v1/events"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ctx.APIKey != "" {
		req.Header.Set("x-api-key", c.ctx.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
