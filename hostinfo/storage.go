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

package hostinfo

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

// DefaultISODir is where a stock Proxmox install keeps ISO images.
const DefaultISODir = "/var/lib/vz/template/iso"

// DefaultStorage is the stock Proxmox image storage.
const DefaultStorage = "local-lvm"

// DefaultBridge is the stock Proxmox network bridge.
const DefaultBridge = "vmbr0"

// DetectISOStorage lists filesystem directories that hold ISO content,
// always starting with the default ISO directory. Additional entries come
// from active storages with iso content reported by pvesm.
func DetectISOStorage(r pve.Runner) []string {
	dirs := []string{DefaultISODir}

	res := pve.Pvesm(r, "status", "-content", "iso")
	if !res.Ok {
		return dirs
	}
	for _, line := range splitTableRows(res.Output) {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[2] != "active" {
			continue
		}
		dir := storageISOPath(fields[0])
		if dir == "" || dir == DefaultISODir {
			continue
		}
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// storageISOPath maps a storage name to its template/iso directory. "local"
// is the stock directory storage; everything else mounts under /mnt/pve.
func storageISOPath(name string) string {
	if name == "local" {
		return DefaultISODir
	}
	return filepath.Join("/mnt/pve", name, "template", "iso")
}

// DetectStorageTargets lists storages that can hold VM images, in pvesm
// order, at most five. The default storage is put first only when pvesm
// does not list it.
func DetectStorageTargets(r pve.Runner) []string {
	targets := []string{}
	res := pve.Pvesm(r, "status", "-content", "images")
	if res.Ok {
		for _, line := range splitTableRows(res.Output) {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if !contains(targets, fields[0]) {
				targets = append(targets, fields[0])
			}
		}
	}
	if !contains(targets, DefaultStorage) {
		targets = append([]string{DefaultStorage}, targets...)
	}
	if len(targets) > 5 {
		targets = targets[:5]
	}
	return targets
}

// NextVMID asks the cluster API for the next free VMID, falling back to
// max(existing)+1 from qm list, clamped to the valid range. Total probe
// failure yields 900.
func NextVMID(r pve.Runner) int {
	res := pve.Pvesh(r, "get", "/cluster/nextid")
	if res.Ok {
		if vmid, err := strconv.Atoi(strings.TrimSpace(strings.Trim(res.Output, `"`))); err == nil {
			if vmid >= 100 && vmid <= 999999 {
				return vmid
			}
		}
	}

	res = pve.Qm(r, "list")
	if !res.Ok {
		return 900
	}
	max := 0
	for _, line := range splitTableRows(res.Output) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if vmid, err := strconv.Atoi(fields[0]); err == nil && vmid > max {
			max = vmid
		}
	}
	if max == 0 {
		return 900
	}
	next := max + 1
	if next < 100 {
		return 100
	}
	if next > 999999 {
		return 999999
	}
	return next
}

// splitTableRows drops the header row of pvesm/qm tabular output.
func splitTableRows(output string) []string {
	lines := strings.Split(output, "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
