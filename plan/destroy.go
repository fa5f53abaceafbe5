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

package plan

import (
	"strconv"
	"strings"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

// VmInfo is a shallow view of an existing VM used to confirm a destroy
// target.
type VmInfo struct {
	VMID      int
	Name      string
	Status    string // "running" | "stopped"
	ConfigRaw string
}

// FetchVmInfo returns nil when the VM does not exist.
func FetchVmInfo(r pve.Runner, vmid int) *VmInfo {
	status := pve.Qm(r, "status", strconv.Itoa(vmid))
	if !status.Ok {
		return nil
	}
	info := &VmInfo{VMID: vmid, Status: "stopped"}
	for _, line := range strings.Split(status.Output, "\n") {
		if strings.Contains(strings.ToLower(line), "running") {
			info.Status = "running"
			break
		}
	}

	cfg := pve.Qm(r, "config", strconv.Itoa(vmid))
	if cfg.Ok {
		info.ConfigRaw = cfg.Output
		for _, line := range strings.Split(cfg.Output, "\n") {
			if rest, ok := strings.CutPrefix(line, "name:"); ok {
				info.Name = strings.TrimSpace(rest)
				break
			}
		}
	}
	return info
}

// BuildDestroyPlan emits the two-step teardown. Both steps are warn-risk:
// they are destructive but reversible from the snapshot.
func BuildDestroyPlan(vmid int, purge bool) []Step {
	vid := strconv.Itoa(vmid)
	destroy := []string{"qm", "destroy", vid}
	if purge {
		destroy = append(destroy, "--purge")
	}
	return []Step{
		{Title: "Stop VM", Argv: []string{"qm", "stop", vid}, Risk: RiskWarn},
		{Title: "Destroy VM", Argv: destroy, Risk: RiskWarn},
	}
}
