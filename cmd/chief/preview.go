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
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiefworks/chief/internal/config"
	"github.com/chiefworks/chief/internal/schedule"
)

const defaultPreviewCount = 5

func newPreviewCommand() *cobra.Command {
	var jobName string
	var count int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show friendly schedule preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--count must be >= 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			selected, err := filterJobs(cfg, jobName, true)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			out := cmd.OutOrStdout()
			for _, job := range selected {
				printJobPreview(out, job, count, now)
			}
			fmt.Fprintln(out, strings.Repeat("=", 80))
			return nil
		},
	}
	cmd.Flags().StringVar(&jobName, "job", "", "Preview a single job by name")
	cmd.Flags().IntVar(&count, "count", defaultPreviewCount, "Next run count")
	return cmd
}

func printJobPreview(out io.Writer, job *config.Job, count int, now time.Time) {
	compiled := job.Compiled
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Job: %s (enabled=%t)\n", job.Name, job.Enabled)
	fmt.Fprintln(out, compiled.Description)
	fmt.Fprintf(out, "Schedule mode: %s\n", compiled.Kind)
	switch {
	case compiled.CronExpr == "":
		fmt.Fprintln(out, "Cron equivalent: runtime-only")
	case compiled.Kind == schedule.KindHybrid:
		fmt.Fprintf(out, "Cron trigger + runtime guard: %s\n", compiled.CronExpr)
	default:
		fmt.Fprintf(out, "Cron equivalent: %s\n", compiled.CronExpr)
	}
	if compiled.Start != nil {
		fmt.Fprintf(out, "Start bound: %s\n", compiled.Start.In(compiled.Location).Format(time.RFC3339))
	}
	if compiled.End != nil {
		fmt.Fprintf(out, "End bound: %s\n", compiled.End.In(compiled.Location).Format(time.RFC3339))
	}
	if len(compiled.Exclude) > 0 {
		dates := make([]string, 0, len(compiled.Exclude))
		for date := range compiled.Exclude {
			dates = append(dates, date)
		}
		sort.Strings(dates)
		fmt.Fprintf(out, "Exclude dates: %s\n", strings.Join(dates, ", "))
	}
	fmt.Fprintln(out, "Scripts:")
	for _, script := range job.Scripts {
		argsText := "(none)"
		if len(script.Args) > 0 {
			quoted := make([]string, len(script.Args))
			for i, arg := range script.Args {
				quoted[i] = shellQuote(arg)
			}
			argsText = strings.Join(quoted, " ")
		}
		fmt.Fprintf(out, "- %s | timeout=%ds | args=%s\n", script.Path, int(script.Timeout/time.Second), argsText)
	}
	fmt.Fprintf(out, "Next %d run(s):\n", count)
	runs := compiled.NextTimes(now, count)
	if len(runs) == 0 {
		fmt.Fprintln(out, "- none")
	}
	for _, run := range runs {
		fmt.Fprintf(out, "- %s\n", run.In(compiled.Location).Format(time.RFC3339))
	}
}
