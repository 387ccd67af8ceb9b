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

// Package executor runs job pipelines: sequential scripts with captured
// output, timeouts, and telemetry emission.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/chiefworks/chief/internal/config"
)

// Return codes for abnormal script outcomes
const (
	ReturnCodeTimeout      = -1
	ReturnCodeSpawnFailure = -2
)

const errorTimeout = "timeout"
const errorSpawn = "exception"

// ScriptResult is the outcome of one script run.
type ScriptResult struct {
	Script     config.Script
	Success    bool
	ReturnCode int
	Duration   time.Duration
	Stdout     string
	Stderr     string
	Error      string
}

// RunScript executes one script in the job's working directory with the
// given extra environment. It never returns an error: abnormal outcomes are
// folded into the result's return code.
func RunScript(ctx context.Context, script config.Script, workingDir string, extraEnv map[string]string) ScriptResult {
	runCtx, cancel := context.WithTimeout(ctx, script.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, script.ResolvedPath, script.Args...)
	cmd.Dir = workingDir
	cmd.WaitDelay = 10 * time.Second

	// Scripts run in their own process group so a timeout kills children the
	// script spawned, not just the script itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	env := os.Environ()
	for key, value := range extraEnv {
		env = append(env, key+"="+value)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	result := ScriptResult{
		Script:   script,
		Duration: duration,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	switch {
	case err == nil:
		result.Success = true
		result.ReturnCode = 0
	case runCtx.Err() == context.DeadlineExceeded:
		result.ReturnCode = ReturnCodeTimeout
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("Timed out after %d seconds.", int(script.Timeout/time.Second))
		result.Error = errorTimeout
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
		} else {
			result.ReturnCode = ReturnCodeSpawnFailure
			result.Stdout = ""
			result.Stderr = err.Error()
			result.Error = errorSpawn
		}
	}
	return result
}
