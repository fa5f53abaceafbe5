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

// Package pve wraps the Proxmox VE toolchain (qm, pvesm, pvesh) and the
// disk toolbelt behind a uniform Runner interface. Every plan step is a
// direct argv or a single `bash -c "<script>"`; the adapter never invokes
// a shell on its own.
package pve

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/pkg/capnslog"

	"github.com/lucid-fabrics/osx-proxmox-next/system/exec"
)

var plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "pve")

// CommandTimeout bounds every toolchain invocation. A hung qm or losetup is
// reported as rc=124, mirroring timeout(1).
const CommandTimeout = 300 * time.Second

// TimeoutReturnCode is the synthetic return code for a timed-out command.
const TimeoutReturnCode = 124

// Result carries the combined stdout+stderr and the return code of a
// toolchain invocation.
type Result struct {
	Ok         bool
	ReturnCode int
	Output     string
}

// Runner is the single seam between the planner/executor/probes and the
// host. The production implementation shells out; tests substitute a
// recorder.
type Runner interface {
	Run(argv []string) Result
}

// Adapter is the production Runner.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Run(argv []string) Result {
	ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if ctx.Err() == context.DeadlineExceeded {
		plog.Errorf("command timed out after %s: %s", CommandTimeout, strings.Join(argv, " "))
		return Result{
			Ok:         false,
			ReturnCode: TimeoutReturnCode,
			Output:     "command timed out after 300s: " + strings.Join(argv, " ") + "\n" + output,
		}
	}
	if err != nil {
		rc := 1
		if exitErr, ok := err.(interface{ ExitCode() int }); ok && exitErr.ExitCode() > 0 {
			rc = exitErr.ExitCode()
		}
		if output == "" {
			output = err.Error()
		}
		return Result{Ok: false, ReturnCode: rc, Output: output}
	}
	return Result{Ok: true, ReturnCode: 0, Output: output}
}

// Qm invokes the VM manager.
func Qm(r Runner, args ...string) Result {
	return r.Run(append([]string{"qm"}, args...))
}

// Pvesm invokes the storage manager.
func Pvesm(r Runner, args ...string) Result {
	return r.Run(append([]string{"pvesm"}, args...))
}

// Pvesh invokes the cluster API shell.
func Pvesh(r Runner, args ...string) Result {
	return r.Run(append([]string{"pvesh"}, args...))
}
