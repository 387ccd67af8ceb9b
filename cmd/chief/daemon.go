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
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiefworks/chief/internal/daemon"
	"github.com/chiefworks/chief/internal/executor"
	"github.com/chiefworks/chief/internal/telemetry"
)

func newDaemonCommand() *cobra.Command {
	var pollSeconds int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduler daemon loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pollSeconds <= 0 {
				return errors.New("--poll-seconds must be >= 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			selected, err := filterJobs(cfg, "", false)
			if err != nil {
				return err
			}

			emitter := telemetry.NewEmitter(effectiveMonitor(cfg, selected), log)
			defer emitter.Close()

			heartbeat := daemon.NewHeartbeat(emitter, log, daemon.DefaultHeartbeatInterval, daemon.ModeDaemon)
			heartbeat.Start()
			defer heartbeat.Stop()

			runner := executor.NewRunner(log, emitter)
			scheduler := daemon.New(selected, runner, emitter, log, time.Duration(pollSeconds)*time.Second)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := scheduler.Run(ctx); err != nil {
				return err
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return errInterrupted
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pollSeconds, "poll-seconds", int(daemon.DefaultPollInterval/time.Second),
		"Polling interval in seconds")
	return cmd
}
