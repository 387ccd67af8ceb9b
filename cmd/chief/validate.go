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

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and compile schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enabled := 0
			for _, job := range cfg.Jobs {
				if job.Enabled {
					enabled++
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config valid: %s\n", cfg.Path)
			fmt.Fprintf(out, "Total jobs: %d\n", len(cfg.Jobs))
			fmt.Fprintf(out, "Enabled jobs: %d\n", enabled)
			for _, job := range cfg.Jobs {
				line := fmt.Sprintf("- %s: %s", job.Name, job.Compiled.Kind)
				if job.Compiled.CronExpr != "" {
					line += fmt.Sprintf(" (%s)", job.Compiled.CronExpr)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
