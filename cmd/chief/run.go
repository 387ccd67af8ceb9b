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

package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiefworks/chief/internal/daemon"
	"github.com/chiefworks/chief/internal/executor"
	"github.com/chiefworks/chief/internal/telemetry"
)

var errJobFailed = errors.New("one or more jobs failed")

func newRunCommand() *cobra.Command {
	var jobName string
	var respectSchedule bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run jobs once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			selected, err := filterJobs(cfg, jobName, false)
			if err != nil {
				return err
			}

			emitter := telemetry.NewEmitter(effectiveMonitor(cfg, selected), log)
			defer emitter.Close()

			heartbeat := daemon.NewHeartbeat(emitter, log, daemon.DefaultHeartbeatInterval, daemon.ModeRun)
			heartbeat.Start()
			defer heartbeat.Stop()

			runner := executor.NewRunner(log, emitter)
			now := time.Now().UTC()
			failed := false
			for _, job := range selected {
				if respectSchedule && !job.Compiled.IsDueAt(now) {
					log.Info("skipping job: not due now", "job", job.Name)
					continue
				}
				result := runner.RunJob(cmd.Context(), job, nil)
				if !result.Success {
					failed = true
				}
			}
			if failed {
				return errJobFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobName, "job", "", "Run one job by name")
	cmd.Flags().BoolVar(&respectSchedule, "respect-schedule", false, "Only run selected job(s) if currently due")
	return cmd
}
