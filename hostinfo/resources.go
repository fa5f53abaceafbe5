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
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DetectCores picks a default guest core count: half the host's logical
// cores (all of them on small hosts), clamped to [2,16], then rounded down
// to a power of two. macOS hangs at the Apple logo on odd topologies.
func DetectCores() int {
	count, err := cpu.Counts(true)
	if err != nil || count <= 0 {
		count = 4
	}
	return defaultCores(count)
}

func defaultCores(hostCores int) int {
	half := hostCores
	if hostCores >= 8 {
		half = hostCores / 2
	}
	if half < 2 {
		half = 2
	}
	if half > 16 {
		half = 16
	}
	return roundDownPowerOfTwo(half)
}

func roundDownPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	if p < 2 {
		return 2
	}
	return p
}

// DetectMemoryMB picks a default guest memory size: half the host total,
// clamped to [4096,32768] MB. Probe failure falls back to 8 GiB.
func DetectMemoryMB() int {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return 8192
	}
	return defaultMemoryMB(int(vm.Total / (1024 * 1024)))
}

func defaultMemoryMB(hostMB int) int {
	half := hostMB / 2
	if half < 4096 {
		return 4096
	}
	if half > 32768 {
		return 32768
	}
	return half
}
