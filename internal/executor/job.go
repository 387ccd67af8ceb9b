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

package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/config"
	"github.com/chiefworks/chief/internal/telemetry"
)

const outputPreviewLimit = 1000

// JobResult is the outcome of one job invocation.
type JobResult struct {
	JobName      string
	RunID        string
	Success      bool
	Scripts      []ScriptResult
	StartedAt    time.Time
	EndedAt      time.Time
	ScheduledFor *time.Time
}

// Runner executes jobs and ships their telemetry.
type Runner struct {
	log     logr.Logger
	emitter *telemetry.Emitter
}

// NewRunner builds a job runner. The emitter may be disabled; emission is
// always best-effort.
func NewRunner(log logr.Logger, emitter *telemetry.Emitter) *Runner {
	return &Runner{log: log, emitter: emitter}
}

// MintRunID produces a run identifier unique per invocation:
// {job}:{YYYYMMDDHHMMSS}-{microseconds}-{pid}.
func MintRunID(jobName string, startedAt time.Time) string {
	utc := startedAt.UTC()
	return fmt.Sprintf("%s:%s-%06d-%d", jobName, utc.Format("20060102150405"), utc.Nanosecond()/1000, os.Getpid())
}

// RunJob executes the job's scripts in order, honoring stop_on_failure, and
// emits the full telemetry trail including the post-run next-schedule event.
func (r *Runner) RunJob(ctx context.Context, job *config.Job, scheduledFor *time.Time) JobResult {
	started := time.Now().UTC()
	runID := MintRunID(job.Name, started)
	checkMeta := job.CheckMetadata()
	log := r.log.WithValues("runId", runID, "job", job.Name)

	if scheduledFor != nil {
		log.Info("starting job", "scheduledFor", scheduledFor.In(job.Compiled.Location).Format(time.RFC3339))
	} else {
		log.Info("starting job")
	}

	r.emit(job, telemetry.Event{
		SourceType:   telemetry.SourceChief,
		EventType:    telemetry.EventJobStarted,
		Level:        telemetry.LevelInfo,
		Message:      fmt.Sprintf("Job %s started.", job.Name),
		EventAt:      started,
		JobName:      job.Name,
		RunID:        runID,
		ScheduledFor: copyTime(scheduledFor),
		Metadata: mergeMeta(map[string]any{
			"overlap":      string(job.Overlap),
			"script_count": len(job.Scripts),
		}, checkMeta),
	})

	var results []ScriptResult
	for idx, script := range job.Scripts {
		log.Info("running script", "index", idx+1, "total", len(job.Scripts), "path", script.Path)

		r.emit(job, telemetry.Event{
			SourceType:   telemetry.SourceChief,
			EventType:    telemetry.EventScriptStarted,
			Level:        telemetry.LevelInfo,
			Message:      fmt.Sprintf("Script started: %s", script.Path),
			EventAt:      time.Now().UTC(),
			JobName:      job.Name,
			ScriptPath:   script.ResolvedPath,
			RunID:        runID,
			ScheduledFor: copyTime(scheduledFor),
			Metadata: map[string]any{
				"script_index":    idx + 1,
				"script_total":    len(job.Scripts),
				"args":            script.Args,
				"timeout_seconds": int(script.Timeout / time.Second),
			},
		})

		result := RunScript(ctx, script, job.WorkingDir, r.scriptEnv(job, script, runID, scheduledFor))
		results = append(results, result)

		level := telemetry.LevelInfo
		message := fmt.Sprintf("Script completed: %s", script.Path)
		if !result.Success {
			level = telemetry.LevelError
			message = fmt.Sprintf("Script failed: %s (code=%d)", script.Path, result.ReturnCode)
		}
		r.emit(job, telemetry.Event{
			SourceType:   telemetry.SourceChief,
			EventType:    telemetry.EventScriptCompleted,
			Level:        level,
			Message:      message,
			EventAt:      time.Now().UTC(),
			JobName:      job.Name,
			ScriptPath:   script.ResolvedPath,
			RunID:        runID,
			ScheduledFor: copyTime(scheduledFor),
			Success:      telemetry.Bool(result.Success),
			ReturnCode:   telemetry.Int(result.ReturnCode),
			DurationMs:   telemetry.Int64(result.Duration.Milliseconds()),
			Metadata: map[string]any{
				"error":          result.Error,
				"stdout_preview": preview(result.Stdout),
				"stderr_preview": preview(result.Stderr),
			},
		})

		if result.Success {
			log.Info("script succeeded", "path", script.Path, "duration", result.Duration.String())
			continue
		}
		log.Error(nil, "script failed", "path", script.Path, "returnCode", result.ReturnCode, "duration", result.Duration.String())
		if job.StopOnFailure {
			log.Error(nil, "stop_on_failure=true; aborting remaining scripts")
			break
		}
	}

	ended := time.Now().UTC()
	success := true
	var failedScript string
	for _, result := range results {
		if !result.Success {
			success = false
			if failedScript == "" {
				failedScript = result.Script.Path
			}
		}
	}

	eventType := telemetry.EventJobCompleted
	level := telemetry.LevelInfo
	message := fmt.Sprintf("Job %s completed successfully.", job.Name)
	if !success {
		eventType = telemetry.EventJobFailed
		level = telemetry.LevelError
		message = fmt.Sprintf("Job %s failed.", job.Name)
	}
	completedMeta := mergeMeta(map[string]any{
		"scripts_executed": len(results),
		"scripts_total":    len(job.Scripts),
		"stop_on_failure":  job.StopOnFailure,
	}, checkMeta)
	if failedScript != "" {
		completedMeta["failed_script"] = failedScript
	}
	r.emit(job, telemetry.Event{
		SourceType:   telemetry.SourceChief,
		EventType:    eventType,
		Level:        level,
		Message:      message,
		EventAt:      ended,
		JobName:      job.Name,
		RunID:        runID,
		ScheduledFor: copyTime(scheduledFor),
		Success:      telemetry.Bool(success),
		DurationMs:   telemetry.Int64(ended.Sub(started).Milliseconds()),
		Metadata:     completedMeta,
	})
	log.Info("job finished", "success", success, "duration", ended.Sub(started).String())

	r.emitNextScheduled(job, runID, scheduledFor, ended, checkMeta)

	return JobResult{
		JobName:      job.Name,
		RunID:        runID,
		Success:      success,
		Scripts:      results,
		StartedAt:    started,
		EndedAt:      ended,
		ScheduledFor: scheduledFor,
	}
}

// emitNextScheduled publishes the job's next firing so the monitor can track
// missed runs.
func (r *Runner) emitNextScheduled(job *config.Job, runID string, scheduledFor *time.Time, after time.Time, checkMeta map[string]any) {
	next, ok := job.Compiled.NextAfter(after)

	var nextISO any
	message := fmt.Sprintf("Next run for %s: none", job.Name)
	if ok {
		iso := next.UTC().Format(time.RFC3339)
		nextISO = iso
		message = fmt.Sprintf("Next run for %s: %s", job.Name, iso)
		r.log.Info("next scheduled run", "job", job.Name,
			"nextRun", next.In(job.Compiled.Location).Format(time.RFC3339), "timezone", job.Compiled.TimezoneName)
	} else {
		r.log.Info("no next scheduled run (outside bounds/exclusions or schedule ended)", "job", job.Name)
	}

	r.emit(job, telemetry.Event{
		SourceType:   telemetry.SourceChief,
		EventType:    telemetry.EventJobNextSchedule,
		Level:        telemetry.LevelInfo,
		Message:      message,
		EventAt:      time.Now().UTC(),
		JobName:      job.Name,
		RunID:        runID,
		ScheduledFor: copyTime(scheduledFor),
		Metadata:     mergeMeta(map[string]any{"next_run_at": nextISO}, checkMeta),
	})
}

// scriptEnv builds the injected CHIEF_* environment for a worker subprocess.
func (r *Runner) scriptEnv(job *config.Job, script config.Script, runID string, scheduledFor *time.Time) map[string]string {
	env := map[string]string{
		telemetry.EnvRunID:      runID,
		telemetry.EnvJobName:    job.Name,
		telemetry.EnvScriptPath: script.ResolvedPath,
	}
	if scheduledFor != nil {
		env[telemetry.EnvScheduledFor] = scheduledFor.UTC().Format(time.RFC3339)
	}
	if r.emitter != nil && r.emitter.Enabled() && job.Monitor.Enabled {
		settings := r.emitter.Settings()
		env[telemetry.EnvMonitorEndpoint] = settings.Endpoint
		if settings.APIKey != "" {
			env[telemetry.EnvMonitorAPIKey] = settings.APIKey
		}
	}
	return env
}

func (r *Runner) emit(job *config.Job, ev telemetry.Event) {
	if r.emitter == nil || !job.Monitor.Enabled {
		return
	}
	r.emitter.Emit(ev)
}

func preview(s string) string {
	trimmed := []rune(strings.TrimSpace(s))
	if len(trimmed) > outputPreviewLimit {
		trimmed = trimmed[:outputPreviewLimit]
	}
	return string(trimmed)
}

func mergeMeta(base, extra map[string]any) map[string]any {
	for key, value := range extra {
		base[key] = value
	}
	return base
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return telemetry.Time(*t)
}
