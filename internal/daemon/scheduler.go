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

// Package daemon runs the long-lived scheduler loop: trigger detection,
// overlap policies, globally serialized dispatch, and heartbeats.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/chiefworks/chief/internal/config"
	"github.com/chiefworks/chief/internal/executor"
	"github.com/chiefworks/chief/internal/telemetry"
)

// DefaultPollInterval is the scheduler's wake-up cadence.
const DefaultPollInterval = 10 * time.Second

// Trigger is one concrete firing of a job schedule.
type Trigger struct {
	JobName      string
	ScheduledFor time.Time
}

// jobState is the mutable dispatch state of one job.
type jobState struct {
	job           *config.Job
	nextFire      time.Time
	hasNext       bool
	runningCount  int
	queuedPending bool
}

// Scheduler owns the job runtime table and enforces the dispatch rules:
// declaration-order trigger detection, per-job overlap policy, and at most
// one distinct job name running at any instant.
type Scheduler struct {
	log     logr.Logger
	runner  *executor.Runner
	emitter *telemetry.Emitter
	poll    time.Duration
	clock   func() time.Time

	mu       sync.Mutex
	order    []string
	states   map[string]*jobState
	triggers []Trigger
	active   string

	completions chan executor.JobResult
	wg          sync.WaitGroup
}

// New builds a scheduler over the enabled jobs, preserving declaration order.
func New(jobs []*config.Job, runner *executor.Runner, emitter *telemetry.Emitter, log logr.Logger, poll time.Duration) *Scheduler {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	s := &Scheduler{
		log:         log,
		runner:      runner,
		emitter:     emitter,
		poll:        poll,
		clock:       time.Now,
		states:      make(map[string]*jobState, len(jobs)),
		completions: make(chan executor.JobResult, len(jobs)*4+16),
	}
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		s.order = append(s.order, job.Name)
		s.states[job.Name] = &jobState{job: job}
	}
	return s
}

// Run executes the scheduler loop until the context is canceled, then waits
// for in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.clock()
	s.mu.Lock()
	for _, name := range s.order {
		state := s.states[name]
		// No catch-up: past-due triggers before startup are ignored.
		state.nextFire, state.hasNext = state.job.Compiled.NextAfter(now)
		if state.hasNext {
			s.log.Info("scheduled", "job", name,
				"nextFire", state.nextFire.In(state.job.Compiled.Location).Format(time.RFC3339))
		} else {
			s.log.Info("no future runs", "job", name)
		}
	}
	s.mu.Unlock()

	s.log.Info("daemon started", "jobs", len(s.order), "pollSeconds", int(s.poll/time.Second))
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.tick(s.clock())

		timer.Reset(s.poll)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			s.log.Info("daemon stopping; waiting for in-flight jobs")
			s.awaitInflight()
			return nil
		case result := <-s.completions:
			if !timer.Stop() {
				<-timer.C
			}
			s.handleCompletion(result)
		case <-timer.C:
		}
	}
}

// tick performs one scheduler pass: drain completions, detect due triggers
// in declaration order, then dispatch whatever the overlap rules allow.
func (s *Scheduler) tick(now time.Time) {
	s.drainCompletions()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		state := s.states[name]
		for state.hasNext && !state.nextFire.After(now) {
			s.triggers = append(s.triggers, Trigger{JobName: name, ScheduledFor: state.nextFire})
			state.nextFire, state.hasNext = state.job.Compiled.NextAfter(state.nextFire)
		}
	}

	s.dispatchLocked(now)
}

// awaitInflight blocks until every worker has finished, consuming
// completions so no worker can stall on a full channel.
func (s *Scheduler) awaitInflight() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	for {
		select {
		case result := <-s.completions:
			s.handleCompletion(result)
		case <-done:
			s.drainCompletions()
			return
		}
	}
}

func (s *Scheduler) drainCompletions() {
	for {
		select {
		case result := <-s.completions:
			s.handleCompletion(result)
		default:
			return
		}
	}
}

func (s *Scheduler) handleCompletion(result executor.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[result.JobName]
	if !ok {
		return
	}
	if state.runningCount > 0 {
		state.runningCount--
	}
	s.log.Info("job finished", "job", result.JobName, "success", result.Success, "running", state.runningCount)

	if state.runningCount == 0 && state.queuedPending {
		state.queuedPending = false
		// The queued run executes next; its queued_pending event was
		// already emitted when the trigger was captured.
		s.triggers = append([]Trigger{{JobName: result.JobName, ScheduledFor: s.clock()}}, s.triggers...)
		s.log.Info("enqueued queued-pending run", "job", result.JobName)
	}
	if s.active == result.JobName && state.runningCount == 0 && !state.queuedPending {
		s.active = ""
	}
}

// dispatchLocked scans the trigger queue front to back, launching every
// dispatchable trigger, until a full pass makes no progress.
func (s *Scheduler) dispatchLocked(now time.Time) {
	progress := true
	for progress {
		progress = false
		for idx, trigger := range s.triggers {
			state := s.states[trigger.JobName]
			job := state.job

			if state.runningCount > 0 {
				switch job.Overlap {
				case config.OverlapSkip:
					s.log.Info("skipping overlapping run", "job", job.Name,
						"scheduledFor", trigger.ScheduledFor.UTC().Format(time.RFC3339))
					s.emit(job, telemetry.Event{
						SourceType:   telemetry.SourceChief,
						EventType:    telemetry.EventOverlapSkipped,
						Level:        telemetry.LevelInfo,
						Message:      fmt.Sprintf("Skipped overlapping trigger for %s.", job.Name),
						EventAt:      now,
						JobName:      job.Name,
						ScheduledFor: telemetry.Time(trigger.ScheduledFor),
						Metadata:     map[string]any{"overlap": string(job.Overlap)},
					})
					s.removeTrigger(idx)
					progress = true
				case config.OverlapQueue:
					if !state.queuedPending {
						state.queuedPending = true
						s.log.Info("queueing one pending run", "job", job.Name)
						s.emit(job, telemetry.Event{
							SourceType:   telemetry.SourceChief,
							EventType:    telemetry.EventQueuedPending,
							Level:        telemetry.LevelInfo,
							Message:      fmt.Sprintf("Queued overlapping trigger for %s.", job.Name),
							EventAt:      now,
							JobName:      job.Name,
							ScheduledFor: telemetry.Time(trigger.ScheduledFor),
							Metadata:     map[string]any{"overlap": string(job.Overlap)},
						})
					}
					s.removeTrigger(idx)
					progress = true
				case config.OverlapParallel:
					if s.active == "" || s.active == job.Name {
						s.launchLocked(state, trigger.ScheduledFor)
						s.removeTrigger(idx)
						progress = true
					}
				}
				if progress {
					break
				}
				continue
			}

			// Not currently running; global serialization still applies.
			if s.active != "" && s.active != job.Name {
				continue
			}
			s.launchLocked(state, trigger.ScheduledFor)
			s.removeTrigger(idx)
			progress = true
			break
		}
	}
}

// launchLocked marks the job active and starts a worker for the trigger.
func (s *Scheduler) launchLocked(state *jobState, scheduledFor time.Time) {
	job := state.job
	state.runningCount++
	s.active = job.Name
	s.log.Info("dispatching", "job", job.Name, "overlap", string(job.Overlap), "running", state.runningCount)

	s.emit(job, telemetry.Event{
		SourceType:   telemetry.SourceChief,
		EventType:    telemetry.EventDaemonDispatch,
		Level:        telemetry.LevelInfo,
		Message:      fmt.Sprintf("Dispatching %s.", job.Name),
		EventAt:      s.clock(),
		JobName:      job.Name,
		ScheduledFor: telemetry.Time(scheduledFor),
		Metadata: mergeMeta(map[string]any{
			"overlap":       string(job.Overlap),
			"running_count": state.runningCount,
		}, job.CheckMetadata()),
	})

	at := scheduledFor
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.runner.RunJob(context.Background(), job, &at)
		s.completions <- result
	}()
}

func (s *Scheduler) removeTrigger(idx int) {
	s.triggers = append(s.triggers[:idx], s.triggers[idx+1:]...)
}

func (s *Scheduler) emit(job *config.Job, ev telemetry.Event) {
	if s.emitter == nil || !job.Monitor.Enabled {
		return
	}
	s.emitter.Emit(ev)
}

func mergeMeta(base, extra map[string]any) map[string]any {
	for key, value := range extra {
		base[key] = value
	}
	return base
}
