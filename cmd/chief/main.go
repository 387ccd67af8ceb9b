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

// chief is the YAML-driven job orchestrator: it compiles job schedules,
// runs scripts with telemetry, and hosts the long-lived daemon loop.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/chiefworks/chief/internal/config"
	"github.com/chiefworks/chief/internal/telemetry"
)

const defaultConfigPath = "chief.yaml"

// errInterrupted maps to exit code 130.
var errInterrupted = errors.New("interrupted")

var (
	cfgPath string
	log     logr.Logger
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return 130
	default:
		log.Error(err, "command failed")
		return 1
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chief",
		Short:         "YAML-driven job orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath,
		fmt.Sprintf("Path to chief YAML config (default: %s)", defaultConfigPath))

	root.AddCommand(
		newValidateCommand(),
		newPreviewCommand(),
		newRunCommand(),
		newDaemonCommand(),
		newExportCronCommand(),
	)
	return root
}

// setupLogging writes human-readable logs to stderr and rotated JSON logs to
// chief.log next to the config file.
func setupLogging() logr.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(filepath.Dir(cfgPath), "chief.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	zl := zerolog.New(io.MultiWriter(console, file)).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

func loadConfig() (*config.File, error) {
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}
	return config.Load(abs)
}

// filterJobs selects jobs by optional name, preserving declaration order.
func filterJobs(cfg *config.File, jobName string, includeDisabled bool) ([]*config.Job, error) {
	selected := cfg.Jobs
	if jobName != "" {
		job := cfg.JobByName(jobName)
		if job == nil {
			return nil, fmt.Errorf("unknown job %q", jobName)
		}
		selected = []*config.Job{job}
	}
	if includeDisabled {
		return selected, nil
	}
	enabled := make([]*config.Job, 0, len(selected))
	for _, job := range selected {
		if job.Enabled {
			enabled = append(enabled, job)
		}
	}
	if len(enabled) == 0 {
		return nil, errors.New("no enabled jobs selected")
	}
	return enabled, nil
}

// effectiveMonitor enables the emitter when the global block or any selected
// job opts in.
func effectiveMonitor(cfg *config.File, jobs []*config.Job) telemetry.Settings {
	settings := cfg.Monitor
	if settings.Enabled {
		return settings
	}
	for _, job := range jobs {
		if job.Monitor.Enabled {
			settings.Enabled = true
			break
		}
	}
	return settings
}
