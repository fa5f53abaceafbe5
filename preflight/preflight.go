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

// Package preflight verifies the host carries everything a macOS guest
// needs before any command is emitted. Checks never fail with an error;
// every outcome is a (name, ok, details) tuple.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/system/exec"
)

// Check is one preflight result.
type Check struct {
	Name    string
	Ok      bool
	Details string
}

var proxmoxBinaries = []string{"qm", "pvesm", "pvesh", "qemu-img"}

// buildBinaries maps the disk-toolbelt binaries to their install hints.
var buildBinaries = []struct {
	name string
	hint string
}{
	{"dmg2img", "apt install dmg2img"},
	{"sgdisk", "apt install gdisk"},
	{"partprobe", "apt install parted"},
	{"losetup", "apt install mount"},
	{"mkfs.fat", "apt install dosfstools"},
	{"blkid", "apt install util-linux"},
}

// Paths overridable for tests.
type Paths struct {
	KvmConf     string // kvm module options
	Cmdline     string // kernel command line
	KvmDevice   string // /dev/kvm
	CPUInfoPath string
}

func DefaultPaths() Paths {
	return Paths{
		KvmConf:     "/etc/modprobe.d/kvm.conf",
		Cmdline:     "/proc/cmdline",
		KvmDevice:   "/dev/kvm",
		CPUInfoPath: hostinfo.DefaultCPUInfoPath,
	}
}

// Run performs every host check.
func Run() []Check {
	return RunWithPaths(DefaultPaths())
}

func RunWithPaths(p Paths) []Check {
	var checks []Check

	for _, bin := range proxmoxBinaries {
		path := findBinary(bin)
		checks = append(checks, Check{
			Name:    bin + " available",
			Ok:      path != "",
			Details: orElse(path, bin+" not found in PATH or common system paths"),
		})
	}

	for _, bin := range buildBinaries {
		path := findBinary(bin.name)
		checks = append(checks, Check{
			Name:    bin.name + " available",
			Ok:      path != "",
			Details: orElse(path, "Not found. Install with: "+bin.hint),
		})
	}

	checks = append(checks,
		checkIgnoreMSRs(p.KvmConf),
		checkIOMMU(p.Cmdline),
		checkInitcallBlacklist(p.Cmdline),
		checkCPUVendor(p.CPUInfoPath),
		checkKvmDevice(p.KvmDevice),
		checkRoot(),
	)
	return checks
}

// AllOk reports whether every check passed; front-ends gate live apply on
// this.
func AllOk(checks []Check) bool {
	for _, c := range checks {
		if !c.Ok {
			return false
		}
	}
	return true
}

func findBinary(name string) string {
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	// sbin is often missing from PATH in non-login root shells.
	for _, prefix := range []string{"/usr/sbin", "/sbin", "/usr/bin", "/bin"} {
		candidate := filepath.Join(prefix, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// checkIgnoreMSRs is critical: without ignore_msrs=Y macOS panics on the
// first unsupported MSR access.
func checkIgnoreMSRs(kvmConf string) Check {
	data, err := os.ReadFile(kvmConf)
	if err == nil && strings.Contains(string(data), "ignore_msrs=Y") {
		return Check{
			Name:    "KVM ignore_msrs",
			Ok:      true,
			Details: "ignore_msrs=Y set in " + kvmConf,
		}
	}
	return Check{
		Name: "KVM ignore_msrs",
		Ok:   false,
		Details: "Missing ignore_msrs=Y — macOS will kernel panic on unsupported MSR access. " +
			"Fix: echo 'options kvm ignore_msrs=Y' >> /etc/modprobe.d/kvm.conf && update-initramfs -k all -u",
	}
}

// checkIOMMU is informational: only GPU passthrough needs it.
func checkIOMMU(cmdline string) Check {
	data, _ := os.ReadFile(cmdline)
	content := string(data)
	if strings.Contains(content, "intel_iommu=on") || strings.Contains(content, "amd_iommu=on") {
		return Check{
			Name:    "IOMMU enabled",
			Ok:      true,
			Details: "IOMMU enabled in kernel cmdline (required for GPU passthrough)",
		}
	}
	return Check{
		Name:    "IOMMU enabled",
		Ok:      true,
		Details: "IOMMU not detected in kernel cmdline — only needed for GPU passthrough",
	}
}

// checkInitcallBlacklist is informational: PVE 8+ GPU passthrough wants
// sysfb_init blacklisted.
func checkInitcallBlacklist(cmdline string) Check {
	data, _ := os.ReadFile(cmdline)
	if strings.Contains(string(data), "initcall_blacklist=sysfb_init") {
		return Check{
			Name:    "initcall_blacklist",
			Ok:      true,
			Details: "sysfb_init blacklisted in kernel cmdline (PVE 8+ GPU passthrough)",
		}
	}
	return Check{
		Name:    "initcall_blacklist",
		Ok:      true,
		Details: "initcall_blacklist not set — only needed for PVE 8+ GPU passthrough",
	}
}

func checkCPUVendor(cpuInfoPath string) Check {
	info := hostinfo.DetectCPU(cpuInfoPath)
	mode := "native host passthrough"
	if info.NeedsEmulatedCPU {
		mode = "Cascadelake-Server emulation"
	}
	return Check{
		Name:    "CPU vendor",
		Ok:      true,
		Details: fmt.Sprintf("%s — %s", info.Vendor, mode),
	}
}

func checkKvmDevice(dev string) Check {
	var st unix.Stat_t
	err := unix.Stat(dev, &st)
	ok := err == nil && st.Mode&unix.S_IFMT == unix.S_IFCHR
	return Check{
		Name:    "/dev/kvm present",
		Ok:      ok,
		Details: "Required for hardware acceleration",
	}
}

func checkRoot() Check {
	return Check{
		Name:    "Root privileges",
		Ok:      os.Geteuid() == 0,
		Details: "Current UID must be root (uid=0) for full workflow",
	}
}

func orElse(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
