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

// Package ingest projects unstructured telemetry payloads into persistable
// event records.
package ingest

import (
	"strings"
	"time"

	"github.com/chiefworks/chief/internal/monitor/store"
)

// MaxBatchSize caps a single /v1/events/batch request.
const MaxBatchSize = 500

var validSourceTypes = map[string]struct{}{
	"chief": {}, "worker": {}, "monitor": {},
}

var validLevels = map[string]struct{}{
	"DEBUG": {}, "INFO": {}, "WARN": {}, "ERROR": {}, "CRITICAL": {},
}

// Normalize projects one raw event payload into a store record. The second
// return value reports acceptance; rejected events are counted as dropped by
// the caller. Unknown payload fields are ignored; unknown metadata keys are
// retained verbatim.
func Normalize(raw map[string]any, now time.Time) (*store.Event, bool) {
	sourceType := strings.ToLower(stringField(raw, "sourceType"))
	level := strings.ToUpper(stringField(raw, "level"))
	message := stringField(raw, "message")
	eventType := stringField(raw, "eventType")

	if _, ok := validSourceTypes[sourceType]; !ok {
		return nil, false
	}
	if _, ok := validLevels[level]; !ok {
		return nil, false
	}
	if message == "" || eventType == "" {
		return nil, false
	}

	event := &store.Event{
		SourceType: sourceType,
		EventType:  eventType,
		Level:      level,
		Message:    message,
		EventAt:    now.UTC(),
		ReceivedAt: now.UTC(),
		JobName:    stringField(raw, "jobName"),
		ScriptPath: stringField(raw, "scriptPath"),
		RunID:      stringField(raw, "runId"),
	}

	if at, ok := timeField(raw, "eventAt"); ok {
		event.EventAt = at
	}
	if at, ok := timeField(raw, "scheduledFor"); ok {
		event.ScheduledFor = &at
	}
	if v, ok := raw["success"].(bool); ok {
		event.Success = &v
	}
	if n, ok := intField(raw, "returnCode"); ok {
		code := int(n)
		event.ReturnCode = &code
	}
	if n, ok := intField(raw, "durationMs"); ok {
		ms := n
		event.DurationMs = &ms
	}
	if meta, ok := raw["metadata"].(map[string]any); ok {
		event.SetMetadata(meta)
	}

	return event, true
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

// intField truncates JSON numbers (float64 after decoding) to integers.
func intField(raw map[string]any, key string) (int64, bool) {
	switch n := raw[key].(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func timeField(raw map[string]any, key string) (time.Time, bool) {
	s, ok := raw[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
