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

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/plan"
)

// newPlanner wires the planner with the toolchain runner and the path the
// generated scripts use to call back into this binary.
func newPlanner(cpu hostinfo.CpuInfo) *plan.Planner {
	p := plan.NewPlanner(runner, cpu)
	if self, err := os.Executable(); err == nil {
		p.HelperPath = self
	}
	return p
}

// vmFlags mirrors config.VmConfig on the command line. Zero values for
// vmid/cores/memory/disk mean "probe the host for a sensible default".
type vmFlags struct {
	vmid          int
	name          string
	macos         string
	cores         int
	memory        int
	disk          int
	bridge        string
	storage       string
	installerPath string

	smbiosSerial string
	smbiosUUID   string
	smbiosMLB    string
	smbiosROM    string
	smbiosModel  string
	noSmbios     bool

	appleServices bool
	verboseBoot   bool
	noDownload    bool
	isoDir        string
	cpuModel      string
}

func (f *vmFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.vmid, "vmid", 0, "VM ID (default: next free ID)")
	fs.StringVar(&f.name, "name", "", "VM name")
	fs.StringVar(&f.macos, "macos", "", "macOS target (ventura, sonoma, sequoia, tahoe)")
	fs.IntVar(&f.cores, "cores", 0, "CPU cores (default: auto-detect)")
	fs.IntVar(&f.memory, "memory", 0, "Memory in MB (default: auto-detect)")
	fs.IntVar(&f.disk, "disk", 0, "Disk size in GB (default: per-release floor)")
	fs.StringVar(&f.bridge, "bridge", hostinfo.DefaultBridge, "Network bridge")
	fs.StringVar(&f.storage, "storage", hostinfo.DefaultStorage, "Storage target for VM disks")
	fs.StringVar(&f.installerPath, "installer-path", "", "Pre-staged full installer image path")

	fs.StringVar(&f.smbiosSerial, "smbios-serial", "", "SMBIOS serial (default: generated)")
	fs.StringVar(&f.smbiosUUID, "smbios-uuid", "", "SMBIOS UUID (default: generated)")
	fs.StringVar(&f.smbiosMLB, "smbios-mlb", "", "SMBIOS MLB (default: generated)")
	fs.StringVar(&f.smbiosROM, "smbios-rom", "", "SMBIOS ROM (default: generated)")
	fs.StringVar(&f.smbiosModel, "smbios-model", "", "SMBIOS model (default: per-release)")
	fs.BoolVar(&f.noSmbios, "no-smbios", false, "Skip the SMBIOS identity step")

	fs.BoolVar(&f.appleServices, "apple-services", false,
		"Configure for Apple services (iMessage, FaceTime, iCloud). Adds vmgenid and static MAC.")
	fs.BoolVar(&f.verboseBoot, "verbose-boot", false,
		"Show verbose kernel log instead of Apple logo during boot")
	fs.BoolVar(&f.noDownload, "no-download", false, "Skip auto-download of missing assets")
	fs.StringVar(&f.isoDir, "iso-dir", "", "Directory for ISO/recovery images (default: auto-detect)")
	fs.StringVar(&f.cpuModel, "cpu-model", "",
		"Override QEMU CPU model (e.g. Skylake-Server-IBRS). Default: auto-detect")

	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("macos"))
}

// toConfig fills host-probed defaults into unset numeric fields and
// returns the config ready for validation.
func (f *vmFlags) toConfig() *config.VmConfig {
	vmid := f.vmid
	if vmid == 0 {
		vmid = hostinfo.NextVMID(runner)
	}
	cores := f.cores
	if cores == 0 {
		cores = hostinfo.DetectCores()
	}
	memory := f.memory
	if memory == 0 {
		memory = hostinfo.DetectMemoryMB()
	}
	disk := f.disk
	if disk == 0 {
		disk = config.DefaultDiskGB(f.macos)
	}
	return &config.VmConfig{
		VMID:          vmid,
		Name:          f.name,
		MacOS:         f.macos,
		Cores:         cores,
		MemoryMB:      memory,
		DiskGB:        disk,
		Bridge:        f.bridge,
		Storage:       f.storage,
		InstallerPath: f.installerPath,
		SmbiosSerial:  f.smbiosSerial,
		SmbiosUUID:    f.smbiosUUID,
		SmbiosMLB:     f.smbiosMLB,
		SmbiosROM:     f.smbiosROM,
		SmbiosModel:   f.smbiosModel,
		NoSmbios:      f.noSmbios,
		AppleServices: f.appleServices,
		VerboseBoot:   f.verboseBoot,
		ISODir:        f.isoDir,
		CPUModel:      f.cpuModel,
	}
}
