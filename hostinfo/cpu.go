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

// Package hostinfo probes the Proxmox host: CPU identity, sensible VM
// resource defaults, ISO storage locations and the next free VMID.
package hostinfo

import (
	"os"
	"strconv"
	"strings"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "hostinfo")

const (
	VendorIntel = "Intel"
	VendorAMD   = "AMD"
)

// Intel family-6 models with hybrid P/E-core topology (Alder Lake, Raptor
// Lake, Meteor Lake). macOS cannot schedule on these natively, so they get
// the emulated CPU model like AMD hosts do.
var hybridIntelModels = map[int]bool{
	151: true, // Alder Lake-S
	154: true, // Alder Lake-P
	170: true, // Meteor Lake
	172: true, // Meteor Lake-L
	183: true, // Raptor Lake-S
	186: true, // Raptor Lake-P
}

// hybridModelFloor treats every newer family-6 model as hybrid. A forward
// guess; newer desktop parts have all shipped with E-cores.
const hybridModelFloor = 190

// CpuInfo is the host CPU identity as derived from the first processor
// block of /proc/cpuinfo.
type CpuInfo struct {
	Vendor    string
	ModelName string
	Family    int
	Model     int

	// NeedsEmulatedCPU is true when the host cannot pass its CPU through
	// to macOS: AMD always, hybrid Intel always.
	NeedsEmulatedCPU bool
}

// DefaultCPUInfoPath is the production CPU descriptor location.
const DefaultCPUInfoPath = "/proc/cpuinfo"

// DetectCPU parses the CPU descriptor at path ("" for the default). A
// missing or unreadable descriptor yields the safe default: Intel, no
// emulation.
func DetectCPU(path string) CpuInfo {
	if path == "" {
		path = DefaultCPUInfoPath
	}
	info := CpuInfo{Vendor: VendorIntel}

	data, err := os.ReadFile(path)
	if err != nil {
		plog.Debugf("no CPU descriptor at %s: %v", path, err)
		return info
	}

	// Only the first processor block matters; all cores report the same
	// family/model.
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" && (info.ModelName != "" || info.Family != 0) {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "vendor_id":
			if strings.Contains(value, "AuthenticAMD") {
				info.Vendor = VendorAMD
			}
		case "model name":
			if info.ModelName == "" {
				info.ModelName = value
			}
		case "cpu family":
			if n, err := strconv.Atoi(value); err == nil && info.Family == 0 {
				info.Family = n
			}
		case "model":
			if n, err := strconv.Atoi(value); err == nil && info.Model == 0 {
				info.Model = n
			}
		}
	}

	info.NeedsEmulatedCPU = needsEmulatedCPU(info)
	return info
}

func needsEmulatedCPU(info CpuInfo) bool {
	if info.Vendor == VendorAMD {
		return true
	}
	if info.Family != 6 {
		return false
	}
	return hybridIntelModels[info.Model] || info.Model >= hybridModelFloor
}

// IsHybridIntel reports whether the host is an Intel part that needs the
// emulated CPU without the AMD kernel quirks.
func (c CpuInfo) IsHybridIntel() bool {
	return c.Vendor == VendorIntel && c.NeedsEmulatedCPU
}
