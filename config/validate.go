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
	"fmt"
	"regexp"
	"strings"
)

// Patterns for every user string that ends up inside a shell command.
// Anchored full-match; anything outside the charset is rejected before a
// single command is emitted.
var (
	nameRe      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.\-]*$`)
	bridgeRe    = regexp.MustCompile(`^vmbr[0-9]+$`)
	storageRe   = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	pathRe      = regexp.MustCompile(`^[a-zA-Z0-9/._\-]+$`)
	serialRe    = regexp.MustCompile(`^[A-Z0-9]{12}$`)
	mlbRe       = regexp.MustCompile(`^[A-Z0-9]{17}$`)
	romRe       = regexp.MustCompile(`^[A-F0-9]{12}$`)
	uuidRe      = regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`)
	modelRe     = regexp.MustCompile(`^[A-Za-z0-9,]{1,20}$`)
	cpuModelRe  = regexp.MustCompile(`^[A-Za-z0-9\-]+$`)
	staticMacRe = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
)

// ValidationError wraps the issue list for callers that want an error value.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid VM config: %s", strings.Join(e.Issues, "; "))
}

// Validate returns the ordered list of human-readable issues with config.
// An empty list means the config is safe to plan against. Messages are
// deterministic so front-ends and tests can rely on them.
func Validate(c *VmConfig) []string {
	var issues []string

	if c.VMID < 100 || c.VMID > 999999 {
		issues = append(issues, "VMID must be between 100 and 999999.")
	}
	if len(c.Name) < 3 {
		issues = append(issues, "VM name must be at least 3 characters.")
	}
	if _, ok := ReleaseFor(c.MacOS); !ok {
		issues = append(issues, fmt.Sprintf("macOS version must be one of: %s.", strings.Join(ReleaseNames(), ", ")))
	}
	if c.Cores < 2 {
		issues = append(issues, "At least 2 CPU cores are required.")
	}
	if c.Cores >= 2 && c.Cores&(c.Cores-1) != 0 {
		issues = append(issues, "CPU cores must be a power of two (macOS hangs on odd topologies).")
	}
	if c.MemoryMB < 4096 {
		issues = append(issues, "At least 4096 MB RAM is required.")
	}
	if c.DiskGB < 64 {
		issues = append(issues, "At least 64 GB disk is required.")
	}
	if !bridgeRe.MatchString(c.Bridge) {
		issues = append(issues, "Bridge must match vmbr<N> (e.g. vmbr0).")
	}
	if len(c.Name) >= 3 && !nameRe.MatchString(c.Name) {
		issues = append(issues, "VM name must start with alphanumeric and contain only [a-zA-Z0-9.-].")
	}
	if c.InstallerPath != "" && !pathRe.MatchString(c.InstallerPath) {
		issues = append(issues, "Installer path contains invalid characters.")
	}
	if c.Storage == "" {
		issues = append(issues, "Storage target is required.")
	} else if !storageRe.MatchString(c.Storage) {
		issues = append(issues, "Storage target must be alphanumeric, hyphens, underscores only.")
	}
	if c.SmbiosSerial != "" && !serialRe.MatchString(c.SmbiosSerial) {
		issues = append(issues, "SMBIOS serial must be exactly 12 chars [A-Z0-9].")
	}
	if c.SmbiosMLB != "" && !mlbRe.MatchString(c.SmbiosMLB) {
		issues = append(issues, "SMBIOS MLB must be exactly 17 chars [A-Z0-9].")
	}
	if c.SmbiosROM != "" && !romRe.MatchString(c.SmbiosROM) {
		issues = append(issues, "SMBIOS ROM must be exactly 12 hex chars [A-F0-9].")
	}
	if c.SmbiosUUID != "" && !uuidRe.MatchString(c.SmbiosUUID) {
		issues = append(issues, "SMBIOS UUID must be a valid uppercase UUID.")
	}
	if c.SmbiosModel != "" && !modelRe.MatchString(c.SmbiosModel) {
		issues = append(issues, "SMBIOS model must be alphanumeric (e.g., MacPro7,1).")
	}
	if c.CPUModel != "" && !cpuModelRe.MatchString(c.CPUModel) {
		issues = append(issues, "CPU model must be alphanumeric/hyphens only (e.g., Skylake-Server-IBRS).")
	}
	if c.StaticMAC != "" && !staticMacRe.MatchString(c.StaticMAC) {
		issues = append(issues, "Static MAC must be XX:XX:XX:XX:XX:XX format (uppercase hex).")
	}
	if c.VMGenID != "" && !uuidRe.MatchString(c.VMGenID) {
		issues = append(issues, "vmgenid must be a valid uppercase UUID.")
	}
	if c.ISODir != "" && !pathRe.MatchString(c.ISODir) {
		issues = append(issues, "ISO directory contains invalid characters.")
	}

	return issues
}

// MustValidate is the defensive gate used by the planner and executor: both
// may assume Validate has run, but still refuse un-validated input.
func MustValidate(c *VmConfig) error {
	if issues := Validate(c); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
