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

package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testPaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		KvmConf: writeFile(t, dir, "kvm.conf", "options kvm ignore_msrs=Y\n"),
		Cmdline: writeFile(t, dir, "cmdline", "BOOT_IMAGE=/boot/vmlinuz root=/dev/mapper/pve-root\n"),
		// /dev/null is a character device on every host we run on.
		KvmDevice:   "/dev/null",
		CPUInfoPath: writeFile(t, dir, "cpuinfo", "vendor_id\t: GenuineIntel\ncpu family\t: 6\nmodel\t\t: 85\n"),
	}
}

func checkByName(t *testing.T, checks []Check, name string) Check {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %q", name)
	return Check{}
}

func TestChecksNeverPanicAndCoverEverything(t *testing.T) {
	checks := RunWithPaths(testPaths(t))

	for _, name := range []string{
		"qm available", "pvesm available", "pvesh available", "qemu-img available",
		"dmg2img available", "sgdisk available", "partprobe available",
		"losetup available", "mkfs.fat available", "blkid available",
		"KVM ignore_msrs", "IOMMU enabled", "initcall_blacklist",
		"CPU vendor", "/dev/kvm present", "Root privileges",
	} {
		checkByName(t, checks, name)
	}
}

func TestIgnoreMSRs(t *testing.T) {
	p := testPaths(t)
	check := checkByName(t, RunWithPaths(p), "KVM ignore_msrs")
	if !check.Ok {
		t.Fatalf("ignore_msrs should pass: %+v", check)
	}

	p.KvmConf = filepath.Join(t.TempDir(), "missing.conf")
	check = checkByName(t, RunWithPaths(p), "KVM ignore_msrs")
	if check.Ok {
		t.Fatal("missing kvm.conf must fail")
	}
	if !strings.Contains(check.Details, "update-initramfs") {
		t.Fatalf("failure must carry the fix command: %s", check.Details)
	}
}

func TestIOMMUInformational(t *testing.T) {
	p := testPaths(t)
	check := checkByName(t, RunWithPaths(p), "IOMMU enabled")
	if !check.Ok {
		t.Fatal("missing IOMMU is informational, never a failure")
	}
	if !strings.Contains(check.Details, "only needed") {
		t.Fatalf("details = %s", check.Details)
	}

	dir := t.TempDir()
	p.Cmdline = writeFile(t, dir, "cmdline", "quiet intel_iommu=on iommu=pt\n")
	check = checkByName(t, RunWithPaths(p), "IOMMU enabled")
	if !check.Ok || !strings.Contains(check.Details, "enabled in kernel cmdline") {
		t.Fatalf("enabled IOMMU: %+v", check)
	}
}

func TestKvmDeviceCheck(t *testing.T) {
	p := testPaths(t)
	check := checkByName(t, RunWithPaths(p), "/dev/kvm present")
	if !check.Ok {
		t.Fatal("/dev/null should count as a character device")
	}

	// A regular file is not a KVM device.
	p.KvmDevice = writeFile(t, t.TempDir(), "kvm", "")
	check = checkByName(t, RunWithPaths(p), "/dev/kvm present")
	if check.Ok {
		t.Fatal("a regular file must not pass the /dev/kvm check")
	}
}

func TestCPUVendorCheck(t *testing.T) {
	p := testPaths(t)
	check := checkByName(t, RunWithPaths(p), "CPU vendor")
	if !check.Ok || !strings.Contains(check.Details, "Intel") {
		t.Fatalf("CPU vendor: %+v", check)
	}
	if !strings.Contains(check.Details, "native host passthrough") {
		t.Fatalf("legacy Intel should report passthrough: %s", check.Details)
	}

	dir := t.TempDir()
	p.CPUInfoPath = writeFile(t, dir, "cpuinfo", "vendor_id\t: AuthenticAMD\ncpu family\t: 25\nmodel\t: 33\n")
	check = checkByName(t, RunWithPaths(p), "CPU vendor")
	if !strings.Contains(check.Details, "Cascadelake-Server emulation") {
		t.Fatalf("AMD should report emulation: %s", check.Details)
	}
}

func TestAllOk(t *testing.T) {
	if !AllOk([]Check{{Ok: true}, {Ok: true}}) {
		t.Fatal("all passing should be ok")
	}
	if AllOk([]Check{{Ok: true}, {Ok: false}}) {
		t.Fatal("one failure should gate")
	}
}
