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

// Package config loads and validates the orchestrator's YAML job config.
// Validation is strict: unknown keys anywhere in the tree are errors, and
// every failure names the offending field path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	shellargs "github.com/gobs/args"
	"gopkg.in/yaml.v3"

	"github.com/chiefworks/chief/internal/schedule"
	"github.com/chiefworks/chief/internal/telemetry"
)

// DefaultScriptTimeout bounds a single script run unless overridden.
const DefaultScriptTimeout = 3600 * time.Second

// DefaultGraceSeconds is the monitor check grace window.
const DefaultGraceSeconds = 120

// Overlap decides what happens when a trigger fires while the job runs.
type Overlap string

const (
	OverlapSkip     Overlap = "skip"
	OverlapQueue    Overlap = "queue"
	OverlapParallel Overlap = "parallel"
)

// Script is one executable step of a job pipeline.
type Script struct {
	Path         string
	Args         []string
	Timeout      time.Duration
	ResolvedPath string
}

// CheckSettings configures the monitor-side health check of a job.
type CheckSettings struct {
	Enabled        bool
	GraceSeconds   int
	AlertOnFailure bool
	AlertOnMiss    bool
}

// JobMonitor holds the per-job telemetry and check settings.
type JobMonitor struct {
	Enabled bool
	Check   CheckSettings
}

// Job is a validated job definition with its compiled schedule.
type Job struct {
	Name          string
	Enabled       bool
	WorkingDir    string
	StopOnFailure bool
	Overlap       Overlap
	Scripts       []Script
	Schedule      *schedule.Spec
	Compiled      *schedule.Compiled
	Monitor       JobMonitor
}

// Defaults carries the config-level fallbacks applied to each job.
type Defaults struct {
	TimezoneName  string
	WorkingDir    string
	StopOnFailure bool
	Overlap       Overlap
}

// File is a fully loaded and validated orchestrator config.
type File struct {
	Path     string
	Dir      string
	Version  string
	Defaults Defaults
	Jobs     []*Job
	Monitor  telemetry.Settings
}

var validFrequencies = map[string]struct{}{
	"daily": {}, "weekly": {}, "monthly": {}, "yearly": {}, "interval": {}, "custom": {},
}

var validOverlaps = map[string]struct{}{
	string(OverlapSkip): {}, string(OverlapQueue): {}, string(OverlapParallel): {},
}

// Load reads, validates, and compiles a config file. All schedules compile or
// the load fails.
func Load(path string) (*File, error) {
	payload, dir, err := loadPayload(path)
	if err != nil {
		return nil, err
	}

	if err := checkUnknownKeys(payload, "", []string{"version", "defaults", "jobs", "monitor"}); err != nil {
		return nil, err
	}
	versionRaw, ok := payload["version"]
	if !ok {
		return nil, errf("version", "is required")
	}
	version := strings.TrimSpace(fmt.Sprint(versionRaw))
	if version == "" {
		return nil, errf("version", "must be a non-empty value")
	}

	defaults, err := parseDefaults(payload["defaults"], dir)
	if err != nil {
		return nil, err
	}
	monitor, err := parseMonitorSettings(payload["monitor"], dir, "monitor")
	if err != nil {
		return nil, err
	}

	jobsRaw, ok := payload["jobs"].([]any)
	if !ok || len(jobsRaw) == 0 {
		return nil, errf("jobs", "must be a non-empty list")
	}

	seen := map[string]struct{}{}
	jobs := make([]*Job, 0, len(jobsRaw))
	for idx, jobRaw := range jobsRaw {
		fieldPath := fmt.Sprintf("jobs[%d]", idx)
		job, err := parseJob(jobRaw, fieldPath, dir, defaults, monitor)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[job.Name]; dup {
			return nil, errf(fieldPath+".name", "duplicate job name %q", job.Name)
		}
		seen[job.Name] = struct{}{}
		jobs = append(jobs, job)
	}

	return &File{
		Path:     path,
		Dir:      dir,
		Version:  version,
		Defaults: defaults,
		Jobs:     jobs,
		Monitor:  monitor,
	}, nil
}

// EffectiveMonitor returns the emitter settings, enabled when either the
// global block or any job opts in.
func (f *File) EffectiveMonitor() telemetry.Settings {
	settings := f.Monitor
	if settings.Enabled {
		return settings
	}
	for _, job := range f.Jobs {
		if job.Monitor.Enabled {
			settings.Enabled = true
			break
		}
	}
	return settings
}

// JobByName looks up a job by its unique name.
func (f *File) JobByName(name string) *Job {
	for _, job := range f.Jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// CheckMetadata renders the job's check settings as event metadata so the
// monitor can provision the check from heartbeats alone.
func (j *Job) CheckMetadata() map[string]any {
	return map[string]any{
		"check_enabled":    j.Monitor.Check.Enabled,
		"grace_seconds":    j.Monitor.Check.GraceSeconds,
		"alert_on_failure": j.Monitor.Check.AlertOnFailure,
		"alert_on_miss":    j.Monitor.Check.AlertOnMiss,
	}
}

func loadPayload(path string) (map[string]any, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errf("", "config file not found: %s", path)
		}
		return nil, "", errf("", "cannot read config file %s: %v", path, err)
	}
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, "", errf("", "failed to parse YAML in %s: %v", path, err)
	}
	if root == nil {
		root = map[string]any{}
	}
	payload, ok := root.(map[string]any)
	if !ok {
		return nil, "", errf("", "top-level config must be a mapping")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return payload, filepath.Dir(abs), nil
}

func parseDefaults(raw any, configDir string) (Defaults, error) {
	defaults := Defaults{
		TimezoneName:  systemTimezoneName(),
		WorkingDir:    configDir,
		StopOnFailure: true,
		Overlap:       OverlapSkip,
	}
	if raw == nil {
		return defaults, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return defaults, errf("defaults", "must be a mapping")
	}
	if err := checkUnknownKeys(m, "defaults", []string{"timezone", "working_dir", "stop_on_failure", "overlap"}); err != nil {
		return defaults, err
	}

	if tzRaw, ok := m["timezone"]; ok {
		tzName, ok := tzRaw.(string)
		if !ok {
			return defaults, errf("defaults.timezone", "must be a timezone string")
		}
		if _, err := loadLocation(tzName, "defaults.timezone"); err != nil {
			return defaults, err
		}
		defaults.TimezoneName = tzName
	}
	if wdRaw, ok := m["working_dir"]; ok {
		wd, err := resolveWorkingDir(wdRaw, configDir, "defaults.working_dir")
		if err != nil {
			return defaults, err
		}
		defaults.WorkingDir = wd
	}
	stopOnFailure, err := ensureBool(m["stop_on_failure"], "defaults.stop_on_failure", true)
	if err != nil {
		return defaults, err
	}
	defaults.StopOnFailure = stopOnFailure
	overlap, err := parseOverlap(m["overlap"], "defaults.overlap", OverlapSkip)
	if err != nil {
		return defaults, err
	}
	defaults.Overlap = overlap
	return defaults, nil
}

func parseJob(raw any, fieldPath, configDir string, defaults Defaults, monitor telemetry.Settings) (*Job, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errf(fieldPath, "must be a mapping")
	}
	allowed := []string{"name", "enabled", "working_dir", "stop_on_failure", "overlap", "schedule", "scripts", "monitor"}
	if err := checkUnknownKeys(m, fieldPath, allowed); err != nil {
		return nil, err
	}

	name, err := ensureStr(m["name"], fieldPath+".name")
	if err != nil {
		return nil, err
	}
	enabled, err := ensureBool(m["enabled"], fieldPath+".enabled", true)
	if err != nil {
		return nil, err
	}

	workingDir := defaults.WorkingDir
	if wdRaw, ok := m["working_dir"]; ok {
		workingDir, err = resolveWorkingDir(wdRaw, configDir, fieldPath+".working_dir")
		if err != nil {
			return nil, err
		}
	}
	stopOnFailure, err := ensureBool(m["stop_on_failure"], fieldPath+".stop_on_failure", defaults.StopOnFailure)
	if err != nil {
		return nil, err
	}
	overlap, err := parseOverlap(m["overlap"], fieldPath+".overlap", defaults.Overlap)
	if err != nil {
		return nil, err
	}

	spec, err := parseSchedule(m["schedule"], fieldPath+".schedule", defaults.TimezoneName)
	if err != nil {
		return nil, err
	}
	compiled, err := schedule.Compile(spec)
	if err != nil {
		return nil, wrapField(fieldPath, err)
	}

	scripts, err := parseScripts(m["scripts"], fieldPath+".scripts", workingDir)
	if err != nil {
		return nil, err
	}
	jobMonitor, err := parseJobMonitor(m["monitor"], fieldPath+".monitor", monitor.Enabled)
	if err != nil {
		return nil, err
	}

	return &Job{
		Name:          name,
		Enabled:       enabled,
		WorkingDir:    workingDir,
		StopOnFailure: stopOnFailure,
		Overlap:       overlap,
		Scripts:       scripts,
		Schedule:      spec,
		Compiled:      compiled,
		Monitor:       jobMonitor,
	}, nil
}

func parseScripts(raw any, fieldPath, workingDir string) ([]Script, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, errf(fieldPath, "must be a non-empty list")
	}
	scripts := make([]Script, 0, len(list))
	for idx, itemRaw := range list {
		itemPath := fmt.Sprintf("%s[%d]", fieldPath, idx)
		m, ok := itemRaw.(map[string]any)
		if !ok {
			return nil, errf(itemPath, "must be a mapping")
		}
		if err := checkUnknownKeys(m, itemPath, []string{"path", "args", "timeout"}); err != nil {
			return nil, err
		}
		pathStr, err := ensureStr(m["path"], itemPath+".path")
		if err != nil {
			return nil, err
		}
		args, err := parseScriptArgs(m["args"], itemPath+".args")
		if err != nil {
			return nil, err
		}
		timeoutSec, err := ensureInt(m["timeout"], itemPath+".timeout", int(DefaultScriptTimeout/time.Second), 1)
		if err != nil {
			return nil, err
		}

		resolved := pathStr
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(workingDir, resolved)
		}
		resolved = filepath.Clean(resolved)
		info, statErr := os.Stat(resolved)
		if statErr != nil || info.IsDir() {
			return nil, errf(itemPath+".path", "script does not exist: %s", resolved)
		}

		scripts = append(scripts, Script{
			Path:         pathStr,
			Args:         args,
			Timeout:      time.Duration(timeoutSec) * time.Second,
			ResolvedPath: resolved,
		})
	}
	return scripts, nil
}

func parseScriptArgs(raw any, fieldPath string) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		// Shell-style arg strings are split with POSIX word rules.
		return shellargs.GetArgs(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for idx, arg := range v {
			switch arg.(type) {
			case string, int, int64, float64, bool:
				out = append(out, fmt.Sprint(arg))
			default:
				return nil, errf(fmt.Sprintf("%s[%d]", fieldPath, idx), "must be a scalar value")
			}
		}
		return out, nil
	default:
		return nil, errf(fieldPath, "must be a list or shell-style string")
	}
}

func parseSchedule(raw any, fieldPath, defaultTimezone string) (*schedule.Spec, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errf(fieldPath, "must be a mapping")
	}

	frequencyRaw, err := ensureStr(m["frequency"], fieldPath+".frequency")
	if err != nil {
		return nil, err
	}
	frequency := strings.ToLower(frequencyRaw)
	if _, ok := validFrequencies[frequency]; !ok {
		return nil, errf(fieldPath+".frequency", "must be one of [custom daily interval monthly weekly yearly], got %q", frequency)
	}

	timezoneName := defaultTimezone
	if tzRaw, ok := m["timezone"]; ok {
		timezoneName, ok = tzRaw.(string)
		if !ok {
			return nil, errf(fieldPath+".timezone", "must be a timezone string")
		}
	}
	loc, err := loadLocation(timezoneName, fieldPath+".timezone")
	if err != nil {
		return nil, err
	}

	var start, end *time.Time
	if startRaw, ok := m["start"]; ok {
		start, err = parseISODateTime(startRaw, loc, fieldPath+".start")
		if err != nil {
			return nil, err
		}
	}
	if endRaw, ok := m["end"]; ok {
		end, err = parseISODateTime(endRaw, loc, fieldPath+".end")
		if err != nil {
			return nil, err
		}
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, errf(fieldPath+".start", "must be <= %s.end", fieldPath)
	}

	exclude, err := parseExcludeDates(m["exclude"], fieldPath+".exclude")
	if err != nil {
		return nil, err
	}
	if err := validateScheduleFields(m, fieldPath, frequency); err != nil {
		return nil, err
	}

	return &schedule.Spec{
		Frequency:    frequency,
		Fields:       m,
		Location:     loc,
		TimezoneName: timezoneName,
		Start:        start,
		End:          end,
		Exclude:      exclude,
	}, nil
}

// validateScheduleFields enforces the structural rules the compiler does not:
// per-frequency allowed fields, mutually exclusive monthly forms, interval
// and custom constraints.
func validateScheduleFields(m map[string]any, fieldPath, frequency string) error {
	globalFields := []string{"frequency", "timezone", "start", "end", "exclude"}
	perFrequency := map[string][]string{
		"daily":    {"time", "weekdays_only"},
		"weekly":   {"day", "time"},
		"monthly":  {"day_of_month", "ordinal", "day", "time"},
		"yearly":   {"month", "day_of_month", "time"},
		"interval": {"every"},
		"custom":   {"minute", "hour", "day_of_month", "month", "day_of_week"},
	}
	if err := checkUnknownKeys(m, fieldPath, append(globalFields, perFrequency[frequency]...)); err != nil {
		return err
	}

	switch frequency {
	case "daily":
		if raw, ok := m["weekdays_only"]; ok {
			if _, isBool := raw.(bool); !isBool {
				return errf(fieldPath+".weekdays_only", "must be true/false")
			}
		}
	case "monthly":
		_, hasDOM := m["day_of_month"]
		_, hasOrdinal := m["ordinal"]
		_, hasDay := m["day"]
		if hasDOM && (hasOrdinal || hasDay) {
			return errf(fieldPath, `monthly schedule cannot mix "day_of_month" with "ordinal/day"`)
		}
		if !hasDOM && !(hasOrdinal && hasDay) {
			return errf(fieldPath, `monthly requires either "day_of_month" or "ordinal + day"`)
		}
	case "interval":
		if _, ok := m["time"]; ok {
			return errf(fieldPath+".time", `interval mode cannot include "time"`)
		}
	case "custom":
		found := false
		for _, f := range perFrequency["custom"] {
			if _, ok := m[f]; ok {
				found = true
				break
			}
		}
		if !found {
			return errf(fieldPath, `"custom" requires at least one of [minute hour day_of_month month day_of_week]`)
		}
	}
	return nil
}

func parseMonitorSettings(raw any, configDir, fieldPath string) (telemetry.Settings, error) {
	settings := telemetry.DefaultSettings(configDir)
	if raw == nil {
		return settings, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return settings, errf(fieldPath, "must be a mapping")
	}
	if err := checkUnknownKeys(m, fieldPath, []string{"enabled", "endpoint", "api_key", "timeout_ms", "buffer"}); err != nil {
		return settings, err
	}

	enabled, err := ensureBool(m["enabled"], fieldPath+".enabled", false)
	if err != nil {
		return settings, err
	}
	settings.Enabled = enabled

	if endpointRaw, ok := m["endpoint"]; ok {
		endpoint, err := ensureStr(endpointRaw, fieldPath+".endpoint")
		if err != nil {
			return settings, err
		}
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return settings, errf(fieldPath+".endpoint", "must be an HTTP URL")
		}
		settings.Endpoint = endpoint
	}
	if apiKeyRaw, ok := m["api_key"]; ok {
		apiKey, isStr := apiKeyRaw.(string)
		if !isStr {
			return settings, errf(fieldPath+".api_key", "must be a string")
		}
		settings.APIKey = apiKey
	}
	timeoutMs, err := ensureInt(m["timeout_ms"], fieldPath+".timeout_ms", int(telemetry.DefaultTimeout/time.Millisecond), 1)
	if err != nil {
		return settings, err
	}
	settings.Timeout = time.Duration(timeoutMs) * time.Millisecond

	bufferRaw := m["buffer"]
	if bufferRaw == nil {
		return settings, nil
	}
	bm, ok := bufferRaw.(map[string]any)
	if !ok {
		return settings, errf(fieldPath+".buffer", "must be a mapping")
	}
	if err := checkUnknownKeys(bm, fieldPath+".buffer", []string{"max_events", "flush_interval_ms", "spool_file"}); err != nil {
		return settings, err
	}
	maxEvents, err := ensureInt(bm["max_events"], fieldPath+".buffer.max_events", telemetry.DefaultMaxEvents, 1)
	if err != nil {
		return settings, err
	}
	settings.Buffer.MaxEvents = maxEvents
	flushMs, err := ensureInt(bm["flush_interval_ms"], fieldPath+".buffer.flush_interval_ms", int(telemetry.DefaultFlushInterval/time.Millisecond), 1)
	if err != nil {
		return settings, err
	}
	settings.Buffer.FlushInterval = time.Duration(flushMs) * time.Millisecond

	if spoolRaw, ok := bm["spool_file"]; ok {
		spool, isStr := spoolRaw.(string)
		if !isStr || strings.TrimSpace(spool) == "" {
			return settings, errf(fieldPath+".buffer.spool_file", "must be a non-empty path string")
		}
		spool = strings.TrimSpace(spool)
		if !filepath.IsAbs(spool) {
			spool = filepath.Join(configDir, spool)
		}
		settings.Buffer.SpoolFile = filepath.Clean(spool)
	}
	return settings, nil
}

func parseJobMonitor(raw any, fieldPath string, globalEnabled bool) (JobMonitor, error) {
	if raw == nil {
		return JobMonitor{
			Enabled: globalEnabled,
			Check: CheckSettings{
				Enabled:        globalEnabled,
				GraceSeconds:   DefaultGraceSeconds,
				AlertOnFailure: true,
				AlertOnMiss:    true,
			},
		}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return JobMonitor{}, errf(fieldPath, "must be a mapping")
	}
	if err := checkUnknownKeys(m, fieldPath, []string{"enabled", "check"}); err != nil {
		return JobMonitor{}, err
	}
	enabled, err := ensureBool(m["enabled"], fieldPath+".enabled", globalEnabled)
	if err != nil {
		return JobMonitor{}, err
	}

	check := CheckSettings{
		Enabled:        enabled,
		GraceSeconds:   DefaultGraceSeconds,
		AlertOnFailure: true,
		AlertOnMiss:    true,
	}
	if checkRaw, ok := m["check"]; ok && checkRaw != nil {
		cm, isMap := checkRaw.(map[string]any)
		if !isMap {
			return JobMonitor{}, errf(fieldPath+".check", "must be a mapping")
		}
		if err := checkUnknownKeys(cm, fieldPath+".check", []string{"enabled", "grace_seconds", "alert_on_failure", "alert_on_miss"}); err != nil {
			return JobMonitor{}, err
		}
		check.Enabled, err = ensureBool(cm["enabled"], fieldPath+".check.enabled", enabled)
		if err != nil {
			return JobMonitor{}, err
		}
		check.GraceSeconds, err = ensureInt(cm["grace_seconds"], fieldPath+".check.grace_seconds", DefaultGraceSeconds, 0)
		if err != nil {
			return JobMonitor{}, err
		}
		check.AlertOnFailure, err = ensureBool(cm["alert_on_failure"], fieldPath+".check.alert_on_failure", true)
		if err != nil {
			return JobMonitor{}, err
		}
		check.AlertOnMiss, err = ensureBool(cm["alert_on_miss"], fieldPath+".check.alert_on_miss", true)
		if err != nil {
			return JobMonitor{}, err
		}
	}
	return JobMonitor{Enabled: enabled, Check: check}, nil
}
