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

package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validConfig() *VmConfig {
	return &VmConfig{
		VMID:     901,
		Name:     "macos-test",
		MacOS:    "sequoia",
		Cores:    8,
		MemoryMB: 16384,
		DiskGB:   128,
		Bridge:   "vmbr0",
		Storage:  "local-lvm",
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	if issues := Validate(validConfig()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	bad := validConfig()
	bad.VMID = 1
	bad.Cores = 1
	bad.Bridge = "br0"

	first := Validate(bad)
	second := Validate(bad)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("validation output not deterministic:\n%s", diff)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 issues, got %v", first)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VmConfig)
		want   string
	}{
		{"vmid low", func(c *VmConfig) { c.VMID = 99 }, "VMID"},
		{"vmid high", func(c *VmConfig) { c.VMID = 1000000 }, "VMID"},
		{"short name", func(c *VmConfig) { c.Name = "ab" }, "at least 3 characters"},
		{"bad name chars", func(c *VmConfig) { c.Name = "bad;name" }, "alphanumeric"},
		{"name leading dash", func(c *VmConfig) { c.Name = "-macos" }, "alphanumeric"},
		{"unknown release", func(c *VmConfig) { c.MacOS = "bigsur" }, "macOS version"},
		{"one core", func(c *VmConfig) { c.Cores = 1 }, "At least 2 CPU cores"},
		{"odd cores", func(c *VmConfig) { c.Cores = 6 }, "power of two"},
		{"low memory", func(c *VmConfig) { c.MemoryMB = 2048 }, "4096 MB"},
		{"small disk", func(c *VmConfig) { c.DiskGB = 32 }, "64 GB"},
		{"bad bridge", func(c *VmConfig) { c.Bridge = "eth0" }, "vmbr"},
		{"empty storage", func(c *VmConfig) { c.Storage = "" }, "Storage target is required"},
		{"bad storage", func(c *VmConfig) { c.Storage = "local lvm" }, "Storage target"},
		{"bad installer path", func(c *VmConfig) { c.InstallerPath = "/tmp/foo;rm -rf /" }, "Installer path"},
		{"short serial", func(c *VmConfig) { c.SmbiosSerial = "ABC123" }, "SMBIOS serial"},
		{"lowercase serial", func(c *VmConfig) { c.SmbiosSerial = "abcdef123456" }, "SMBIOS serial"},
		{"short mlb", func(c *VmConfig) { c.SmbiosMLB = "ABC" }, "SMBIOS MLB"},
		{"bad rom", func(c *VmConfig) { c.SmbiosROM = "GGGGGGGGGGGG" }, "SMBIOS ROM"},
		{"lowercase uuid", func(c *VmConfig) { c.SmbiosUUID = "a0b1c2d3-0000-0000-0000-000000000000" }, "SMBIOS UUID"},
		{"long model", func(c *VmConfig) { c.SmbiosModel = strings.Repeat("A", 21) }, "SMBIOS model"},
		{"bad cpu model", func(c *VmConfig) { c.CPUModel = "host,kvm=off" }, "CPU model"},
		{"bad mac", func(c *VmConfig) { c.StaticMAC = "aa:bb:cc:dd:ee:ff" }, "Static MAC"},
		{"bad vmgenid", func(c *VmConfig) { c.VMGenID = "not-a-uuid" }, "vmgenid"},
		{"bad iso dir", func(c *VmConfig) { c.ISODir = "/var/lib/$(whoami)" }, "ISO directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			issues := Validate(cfg)
			if len(issues) == 0 {
				t.Fatalf("expected a validation issue")
			}
			found := false
			for _, issue := range issues {
				if strings.Contains(issue, tt.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("no issue mentioning %q in %v", tt.want, issues)
			}
		})
	}
}

func TestValidateAcceptsOptionalFields(t *testing.T) {
	cfg := validConfig()
	cfg.SmbiosSerial = "C02XK0AAHX87"
	cfg.SmbiosMLB = "C02739200GUF8JC0A"
	cfg.SmbiosROM = "A2BB5D8E91C0"
	cfg.SmbiosUUID = "0F7A1B2C-3D4E-5F60-7182-93A4B5C6D7E8"
	cfg.SmbiosModel = "MacPro7,1"
	cfg.StaticMAC = "02:DE:AD:BE:EF:01"
	cfg.VMGenID = "0F7A1B2C-3D4E-5F60-7182-93A4B5C6D7E8"
	cfg.CPUModel = "Skylake-Server-IBRS"
	cfg.InstallerPath = "/var/lib/vz/template/iso/tahoe.iso"

	if issues := Validate(cfg); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestMustValidate(t *testing.T) {
	if err := MustValidate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := validConfig()
	bad.Bridge = "nope"
	err := MustValidate(bad)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestReleaseTable(t *testing.T) {
	for name, wantDisk := range map[string]int{
		"tahoe": 160, "sequoia": 128, "sonoma": 96, "ventura": 80,
	} {
		if got := DefaultDiskGB(name); got != wantDisk {
			t.Errorf("DefaultDiskGB(%s) = %d, want %d", name, got, wantDisk)
		}
	}
	if got := DefaultDiskGB("unknown"); got != 80 {
		t.Errorf("DefaultDiskGB(unknown) = %d, want 80", got)
	}

	tahoe, ok := ReleaseFor("tahoe")
	if !ok || tahoe.Channel != ChannelPreview {
		t.Fatalf("tahoe should be a preview release: %+v", tahoe)
	}
	sequoia, ok := ReleaseFor("sequoia")
	if !ok || sequoia.Channel != ChannelStable || sequoia.Major != 15 {
		t.Fatalf("unexpected sequoia entry: %+v", sequoia)
	}

	names := ReleaseNames()
	if names[0] != "ventura" || names[len(names)-1] != "tahoe" {
		t.Fatalf("expected major-version ordering, got %v", names)
	}
}
