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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiefworks/chief/internal/schedule"
)

func newExportCronCommand() *cobra.Command {
	var jobName string

	cmd := &cobra.Command{
		Use:   "export-cron",
		Short: "Export cron-compatible schedules",
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
			binary, err := os.Executable()
			if err != nil {
				binary = "chief"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# chief cron export")
			fmt.Fprintf(out, "# generated_at=%s\n", time.Now().UTC().Format(time.RFC3339))
			for _, job := range selected {
				compiled := job.Compiled
				fmt.Fprintln(out)
				fmt.Fprintf(out, "# job: %s\n", job.Name)
				fmt.Fprintf(out, "# mode: %s\n", compiled.Kind)
				fmt.Fprintf(out, "CRON_TZ=%s\n", compiled.TimezoneName)
				if compiled.Kind == schedule.KindRuntimeOnly {
					fmt.Fprintf(out, "# runtime-only schedule (%s); no cron equivalent.\n", compiled.Description)
					continue
				}
				if compiled.Kind == schedule.KindHybrid {
					fmt.Fprintln(out, "# NOTE: runtime guard required (ordinal/exclusion/bounds).")
				}
				command := fmt.Sprintf("cd %s && %s run --config %s --job %s --respect-schedule",
					shellQuote(job.WorkingDir), shellQuote(binary), shellQuote(cfg.Path), shellQuote(job.Name))
				fmt.Fprintf(out, "%s %s\n", compiled.CronExpr, command)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobName, "job", "", "Export one job by name")
	return cmd
}

// shellQuote wraps a value in single quotes for safe use in a crontab
// command line.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&;|<>()*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
