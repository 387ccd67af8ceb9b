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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefworks/chief/internal/schedule"
)

// writeConfig materializes a config file plus a dummy script in a temp dir so
// path resolution has something real to resolve against.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "task.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	path := filepath.Join(dir, "chief.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const minimalConfig = `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: daily
      time: "08:30"
      timezone: UTC
    scripts:
      - path: task.sh
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Jobs, 1)
	job := cfg.Jobs[0]
	assert.Equal(t, "etl", job.Name)
	assert.True(t, job.Enabled)
	assert.True(t, job.StopOnFailure)
	assert.Equal(t, OverlapSkip, job.Overlap)
	assert.Equal(t, schedule.KindPureCron, job.Compiled.Kind)
	assert.Equal(t, "30 8 * * *", job.Compiled.CronExpr)

	require.Len(t, job.Scripts, 1)
	assert.Equal(t, DefaultScriptTimeout, job.Scripts[0].Timeout)
	assert.True(t, filepath.IsAbs(job.Scripts[0].ResolvedPath))

	assert.False(t, cfg.Monitor.Enabled)
	assert.False(t, cfg.EffectiveMonitor().Enabled)
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	_, err := Load(writeConfig(t, `
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30"}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"top level",
			minimalConfig + "surprise: true\n",
			"unknown top-level keys",
		},
		{
			"job level",
			`
version: 1
jobs:
  - name: etl
    retries: 3
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
`,
			"jobs[0]",
		},
		{
			"schedule level",
			`
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC, day: monday}
    scripts: [{path: task.sh}]
`,
			"jobs[0].schedule",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRejectsDuplicateJobNames(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
  - name: etl
    schedule: {frequency: daily, time: "09:30", timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate job name")
}

func TestLoadRejectsMissingScript(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: nope.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script does not exist")
}

func TestLoadRejectsBadWorkingDir(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    working_dir: missing-dir
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "working directory does not exist")
}

func TestLoadRejectsMonthlyMixedForms(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: monthly
      time: "08:30"
      timezone: UTC
      day_of_month: 5
      ordinal: first
      day: monday
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot mix")
}

func TestLoadRejectsIntervalWithTime(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: interval
      every: 30m
      time: "08:30"
      timezone: UTC
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot include "time"`)
}

func TestLoadRejectsSecondsInterval(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: interval, every: 45s, timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seconds intervals are unsupported")
}

func TestLoadRejectsNamedHolidays(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: daily
      time: "08:30"
      timezone: UTC
      exclude:
        holidays: us
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "named holidays are disabled")
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
defaults:
  timezone: UTC
  stop_on_failure: false
  overlap: queue
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30"}
    scripts: [{path: task.sh}]
  - name: report
    overlap: parallel
    stop_on_failure: true
    schedule: {frequency: interval, every: 90m}
    scripts: [{path: task.sh, timeout: 60}]
`))
	require.NoError(t, err)

	etl := cfg.Jobs[0]
	assert.Equal(t, OverlapQueue, etl.Overlap)
	assert.False(t, etl.StopOnFailure)
	assert.Equal(t, "UTC", etl.Schedule.TimezoneName)

	report := cfg.Jobs[1]
	assert.Equal(t, OverlapParallel, report.Overlap)
	assert.True(t, report.StopOnFailure)
	assert.Equal(t, schedule.KindRuntimeOnly, report.Compiled.Kind)
	assert.Equal(t, 60*time.Second, report.Scripts[0].Timeout)
}

func TestLoadParsesShellStyleArgs(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts:
      - path: task.sh
        args: --mode full "two words" 3
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"--mode", "full", "two words", "3"}, cfg.Jobs[0].Scripts[0].Args)
}

func TestLoadParsesListArgs(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts:
      - path: task.sh
        args: [--limit, 10, true]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"--limit", "10", "true"}, cfg.Jobs[0].Scripts[0].Args)
}

func TestLoadMonitorSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
monitor:
  enabled: true
  endpoint: http://127.0.0.1:9999
  api_key: secret
  timeout_ms: 250
  buffer:
    max_events: 100
    flush_interval_ms: 500
    spool_file: spool/telemetry.jsonl
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.NoError(t, err)

	m := cfg.Monitor
	assert.True(t, m.Enabled)
	assert.Equal(t, "http://127.0.0.1:9999", m.Endpoint)
	assert.Equal(t, "secret", m.APIKey)
	assert.Equal(t, 250*time.Millisecond, m.Timeout)
	assert.Equal(t, 100, m.Buffer.MaxEvents)
	assert.Equal(t, 500*time.Millisecond, m.Buffer.FlushInterval)
	assert.True(t, filepath.IsAbs(m.Buffer.SpoolFile))

	job := cfg.Jobs[0]
	assert.True(t, job.Monitor.Enabled)
	assert.True(t, job.Monitor.Check.Enabled)
	assert.Equal(t, DefaultGraceSeconds, job.Monitor.Check.GraceSeconds)
}

func TestLoadJobMonitorEnablesEmitter(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    monitor:
      enabled: true
      check:
        grace_seconds: 300
        alert_on_miss: false
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.NoError(t, err)

	assert.False(t, cfg.Monitor.Enabled)
	assert.True(t, cfg.EffectiveMonitor().Enabled)

	check := cfg.Jobs[0].Monitor.Check
	assert.Equal(t, 300, check.GraceSeconds)
	assert.True(t, check.AlertOnFailure)
	assert.False(t, check.AlertOnMiss)

	meta := cfg.Jobs[0].CheckMetadata()
	assert.Equal(t, true, meta["check_enabled"])
	assert.Equal(t, 300, meta["grace_seconds"])
}

func TestLoadRejectsBadMonitorEndpoint(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
monitor:
  endpoint: localhost:7410
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: UTC}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an HTTP URL")
}

func TestLoadScheduleBounds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: daily
      time: "08:30"
      timezone: UTC
      start: "2026-01-01T00:00:00"
      end: "2026-12-31T23:59:00"
      exclude: ["2026-07-04"]
    scripts: [{path: task.sh}]
`))
	require.NoError(t, err)

	compiled := cfg.Jobs[0].Compiled
	require.NotNil(t, compiled.Start)
	require.NotNil(t, compiled.End)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), compiled.Start.Unix())
	_, hasFourth := compiled.Exclude["2026-07-04"]
	assert.True(t, hasFourth)

	_, err = Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule:
      frequency: daily
      time: "08:30"
      timezone: UTC
      start: "2027-01-01"
      end: "2026-01-01"
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestLoadRejectsInvalidTimezone(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
jobs:
  - name: etl
    schedule: {frequency: daily, time: "08:30", timezone: Mars/Olympus}
    scripts: [{path: task.sh}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
