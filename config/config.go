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

// Package config holds the VM configuration record, the supported-release
// table and the validator that gates every value before it may appear in a
// shell command.
package config

// VmConfig is the user-supplied description of the macOS guest. Every
// string field that is later embedded in a shell command is constrained by
// Validate to a charset that is safe to interpolate.
type VmConfig struct {
	VMID     int    `yaml:"vmid"`
	Name     string `yaml:"name"`
	MacOS    string `yaml:"macos"`
	Cores    int    `yaml:"cores"`
	MemoryMB int    `yaml:"memory_mb"`
	DiskGB   int    `yaml:"disk_gb"`
	Bridge   string `yaml:"bridge"`
	Storage  string `yaml:"storage"`

	// InstallerPath points at a pre-staged full-installer image,
	// overriding recovery download (required workflow for tahoe).
	InstallerPath string `yaml:"installer_path,omitempty"`

	SmbiosSerial string `yaml:"smbios_serial,omitempty"`
	SmbiosUUID   string `yaml:"smbios_uuid,omitempty"`
	SmbiosMLB    string `yaml:"smbios_mlb,omitempty"`
	SmbiosROM    string `yaml:"smbios_rom,omitempty"`
	SmbiosModel  string `yaml:"smbios_model,omitempty"`
	NoSmbios     bool   `yaml:"no_smbios,omitempty"`

	AppleServices bool   `yaml:"apple_services,omitempty"`
	VMGenID       string `yaml:"vmgenid,omitempty"`
	StaticMAC     string `yaml:"static_mac,omitempty"`

	VerboseBoot bool   `yaml:"verbose_boot,omitempty"`
	CPUModel    string `yaml:"cpu_model,omitempty"`
	ISODir      string `yaml:"iso_dir,omitempty"`
}
