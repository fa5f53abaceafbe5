// Copyright 2025 Lucid Fabrics
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor applies a plan, dry or live, with per-step callbacks
// and a timestamped log file. Execution is strictly in order and stops at
// the first failure; a partially built VM is left for the rollback
// snapshot to explain.
package executor

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lucid-fabrics/osx-proxmox-next/plan"
	"github.com/lucid-fabrics/osx-proxmox-next/pve"
	"github.com/lucid-fabrics/osx-proxmox-next/util"
)

// StepResult is the outcome of one applied step.
type StepResult struct {
	Title      string
	Command    string
	Ok         bool
	ReturnCode int
	Output     string
}

// ApplyResult is the outcome of a whole apply run.
type ApplyResult struct {
	Ok      bool
	Results []StepResult
	LogPath string
}

// StepCallback fires before each step (result nil) and again after it
// (result set). It may be dispatched from any goroutine the caller runs
// Apply on; the executor itself never spawns.
type StepCallback func(index, total int, step plan.Step, result *StepResult)

// Executor applies plans through a Runner.
type Executor struct {
	Runner pve.Runner

	// OutputDir roots the generated/ tree. New sets it to "generated",
	// relative to the working directory.
	OutputDir string
}

func New(r pve.Runner) *Executor {
	return &Executor{Runner: r, OutputDir: "generated"}
}

// Apply runs the steps in order. With execute false every step is logged
// as a dry-run line and treated as successful; no subprocess is invoked.
func (e *Executor) Apply(steps []plan.Step, execute bool, onStep StepCallback) (ApplyResult, error) {
	logDir := filepath.Join(e.OutputDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return ApplyResult{}, errors.Wrapf(err, "creating %s", logDir)
	}
	logPath := filepath.Join(logDir, "apply-"+util.UTCStamp()+".log")
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ApplyResult{}, errors.Wrapf(err, "creating %s", logPath)
	}
	defer logFile.Close()

	log := logrus.New()
	log.SetOutput(logFile)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	log.WithField("execute", execute).Info("apply started")

	result := ApplyResult{Ok: true, LogPath: logPath}
	total := len(steps)

	for i, step := range steps {
		if onStep != nil {
			onStep(i+1, total, step, nil)
		}

		var stepResult StepResult
		if !execute {
			log.Infof("[DRY-RUN] %s: %s", step.Title, step.Command())
			stepResult = StepResult{
				Title:   step.Title,
				Command: step.Command(),
				Ok:      true,
				Output:  "[DRY-RUN] " + step.Title + ": " + step.Command(),
			}
		} else {
			res := e.Runner.Run(step.Argv)
			entry := log.WithFields(logrus.Fields{
				"step": i + 1,
				"rc":   res.ReturnCode,
			})
			entry.Infof("%s: $ %s", step.Title, step.Command())
			if res.Output != "" {
				entry.Info(res.Output)
			}
			stepResult = StepResult{
				Title:      step.Title,
				Command:    step.Command(),
				Ok:         res.Ok,
				ReturnCode: res.ReturnCode,
				Output:     res.Output,
			}
		}

		result.Results = append(result.Results, stepResult)
		if onStep != nil {
			onStep(i+1, total, step, &stepResult)
		}
		if !stepResult.Ok {
			log.Errorf("step %d failed (rc=%d), aborting plan", i+1, stepResult.ReturnCode)
			result.Ok = false
			return result, nil
		}
	}

	log.Info("apply finished")
	return result, nil
}
