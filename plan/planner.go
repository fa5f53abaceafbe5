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
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/pkg/capnslog"
	"github.com/pkg/errors"

	"github.com/lucid-fabrics/osx-proxmox-next/assets"
	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/pve"
	"github.com/lucid-fabrics/osx-proxmox-next/smbios"
)

var plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "plan")

// The AppleSMC OSK string qemu must present for macOS to boot. Published
// by Apple in the SMC firmware and reproduced by every hackintosh stack.
const appleSMCOSK = "ourhardworkbythesewordsguardedpleasedontsteal(c)AppleComputerInc"

// Planner builds install and destroy plans. The Runner is only consulted
// for the import-verb probe and VM info; building a plan never mutates the
// host.
type Planner struct {
	Runner pve.Runner
	CPU    hostinfo.CpuInfo

	// HelperPath is the binary the generated scripts call back into for
	// in-process plist and HFS+ edits. Defaults to the installed name.
	HelperPath string

	importVerb []string
}

func NewPlanner(r pve.Runner, cpu hostinfo.CpuInfo) *Planner {
	return &Planner{Runner: r, CPU: cpu, HelperPath: "osx-next-cli"}
}

// identity is the SMBIOS material threaded through the SMBIOS step, the
// Apple-services steps and the OpenCore config patch. Resolved once per
// plan so all three agree.
type identity struct {
	serial  string
	mlb     string
	uuid    string
	rom     string
	model   string
	mac     string
	vmgenid string
}

// BuildPlan produces the ordered install plan for a validated config. The
// validator is re-run defensively; an un-validated config is refused
// before any command is emitted.
func (p *Planner) BuildPlan(c *config.VmConfig) ([]Step, error) {
	if err := config.MustValidate(c); err != nil {
		return nil, err
	}
	release, ok := config.ReleaseFor(c.MacOS)
	if !ok {
		return nil, errors.Errorf("unsupported macOS release %q", c.MacOS)
	}

	vmid := strconv.Itoa(c.VMID)
	id := p.resolveIdentity(c)

	opencorePath := assets.ResolveOpenCore(c.MacOS, c.ISODir)
	recoveryPath := assets.ResolveRecoveryOrInstaller(c)
	ocDisk := filepath.Join(filepath.Dir(opencorePath),
		fmt.Sprintf("opencore-%s-vm%s.img", c.MacOS, vmid))

	importArgs := p.probeImportVerb()
	plog.Debugf("using import verb: qm %s", strings.Join(importArgs, " "))

	steps := []Step{
		{
			Title: "Create VM shell",
			Argv: []string{
				"qm", "create", vmid,
				"--name", c.Name,
				"--ostype", "other",
				"--machine", "q35",
				"--bios", "ovmf",
				"--cores", strconv.Itoa(c.Cores),
				"--sockets", "1",
				"--memory", strconv.Itoa(c.MemoryMB),
				// macOS has no balloon driver.
				"--balloon", "0",
				"--agent", "enabled=1",
				"--net0", fmt.Sprintf("vmxnet3,bridge=%s,firewall=0", c.Bridge),
			},
			Risk: RiskSafe,
		},
		{
			Title: "Apply macOS hardware profile",
			Argv: []string{
				"qm", "set", vmid,
				"--args", p.hardwareArgs(c),
				"--vga", "std",
				"--tablet", "1",
				"--scsihw", "virtio-scsi-pci",
			},
			Risk: RiskSafe,
		},
	}

	steps = append(steps, p.smbiosSteps(c, vmid, id)...)
	steps = append(steps, p.appleServicesSteps(c, vmid, id)...)

	steps = append(steps,
		Step{
			Title: "Attach EFI + TPM",
			Argv: []string{
				"qm", "set", vmid,
				"--efidisk0", fmt.Sprintf("%s:0,efitype=4m,pre-enrolled-keys=0", c.Storage),
				"--tpmstate0", fmt.Sprintf("%s:0,version=v2.0", c.Storage),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Create main disk",
			Argv: []string{
				"qm", "set", vmid,
				"--virtio0", fmt.Sprintf("%s:%d", c.Storage, c.DiskGB),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Build OpenCore boot disk",
			Argv: []string{
				"bash", "-c",
				p.openCoreDiskScript(c, id, opencorePath, ocDisk),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Import and attach OpenCore disk",
			Argv: []string{
				"bash", "-c",
				importAttachScript(importArgs, vmid, ocDisk, c.Storage, "ide0", true),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Stamp recovery with Apple icon flavour",
			Argv: []string{
				"bash", "-c",
				p.recoveryStampScript(recoveryPath, release.Label),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Import and attach macOS recovery",
			Argv: []string{
				"bash", "-c",
				importAttachScript(importArgs, vmid, recoveryPath, c.Storage, "ide2", false),
			},
			Risk: RiskSafe,
		},
		Step{
			Title: "Set boot order",
			// Recovery first, then the install target, then OpenCore.
			// OpenCore stays hidden behind .contentVisibility=Auxiliary.
			Argv: []string{"qm", "set", vmid, "--boot", "order=ide2;virtio0;ide0"},
			Risk: RiskSafe,
		},
		Step{
			Title: "Start VM",
			Argv:  []string{"qm", "start", vmid},
			Risk:  RiskAction,
		},
	)

	return steps, nil
}

// hardwareArgs renders the raw qemu arguments: AppleSMC, SMBIOS type 2,
// XHCI with HID devices, LPC hotplug off, and the host-appropriate -cpu
// string.
func (p *Planner) hardwareArgs(c *config.VmConfig) string {
	return fmt.Sprintf(`-device isa-applesmc,osk="%s" `+
		"-smbios type=2 -device qemu-xhci -device usb-kbd -device usb-tablet "+
		"-global nec-usb-xhci.msi=off -global ICH9-LPC.acpi-pci-hotplug-with-bridge-support=off "+
		"%s", appleSMCOSK, p.cpuArgs(c))
}

// cpuArgs picks the -cpu string per host:
//   - explicit override: the user's model, Intel vendor, invariant TSC;
//   - AMD or hybrid Intel: Cascadelake-Server with AVX-512/TSX/PCID
//     stripped, which presents a convincing Intel server CPUID while
//     avoiding instructions the host cannot run;
//   - legacy Intel: host passthrough with the KVM paravirt leaves macOS
//     tolerates.
func (p *Planner) cpuArgs(c *config.VmConfig) string {
	if c.CPUModel != "" {
		return fmt.Sprintf("-cpu %s,kvm=on,vendor=GenuineIntel,+invtsc,vmware-cpuid-freq=on", c.CPUModel)
	}
	if p.CPU.NeedsEmulatedCPU {
		return "-cpu Cascadelake-Server," +
			"vendor=GenuineIntel," +
			"+invtsc," +
			"-pcid," +
			"-hle,-rtm," +
			"-avx512f,-avx512dq,-avx512cd,-avx512bw,-avx512vl,-avx512vnni," +
			"kvm=on," +
			"vmware-cpuid-freq=on"
	}
	return "-cpu host,kvm=on,vendor=GenuineIntel,+kvm_pv_unhalt,+kvm_pv_eoi,+hypervisor,+invtsc,vmware-cpuid-freq=on"
}

// resolveIdentity fills in any SMBIOS fields the user left empty. One draw
// feeds the smbios1 step, the Apple-services steps and the PlatformInfo
// patch.
func (p *Planner) resolveIdentity(c *config.VmConfig) identity {
	id := identity{
		serial:  c.SmbiosSerial,
		mlb:     c.SmbiosMLB,
		uuid:    c.SmbiosUUID,
		rom:     c.SmbiosROM,
		model:   c.SmbiosModel,
		mac:     c.StaticMAC,
		vmgenid: c.VMGenID,
	}
	if c.NoSmbios {
		return id
	}
	if id.serial == "" {
		generated := smbios.Generate(c.MacOS, c.AppleServices)
		id.serial = generated.Serial
		id.mlb = generated.MLB
		id.uuid = generated.UUID
		id.rom = generated.ROM
		id.model = generated.Model
		if id.mac == "" {
			id.mac = generated.MAC
		}
	}
	if id.model == "" {
		id.model = smbios.ModelFor(c.MacOS)
	}
	if id.uuid == "" {
		id.uuid = smbios.GenerateUUID()
	}
	if c.AppleServices {
		if id.vmgenid == "" {
			id.vmgenid = smbios.GenerateVMGenID()
		}
		if id.mac == "" {
			id.mac = smbios.GenerateMAC()
		}
		if id.rom == "" {
			id.rom = smbios.ROMFromMAC(id.mac)
		}
	}
	return id
}

// smbiosSteps emits the qm smbios1 step. String fields are Base64-encoded
// with the base64=1 marker so models with commas survive Proxmox's
// key=value parser; the UUID stays plain.
func (p *Planner) smbiosSteps(c *config.VmConfig, vmid string, id identity) []Step {
	if c.NoSmbios {
		return nil
	}
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	value := fmt.Sprintf("uuid=%s,serial=%s,manufacturer=%s,product=%s,family=%s,base64=1",
		id.uuid,
		b64(id.serial),
		b64("Apple Inc."),
		b64(id.model),
		b64("Mac"),
	)
	return []Step{{
		Title: "Set SMBIOS identity",
		Argv:  []string{"qm", "set", vmid, "--smbios1", value},
		Risk:  RiskSafe,
	}}
}

// appleServicesSteps configures vmgenid and a stable MAC; both are part of
// the identity Apple's activation servers key on.
func (p *Planner) appleServicesSteps(c *config.VmConfig, vmid string, id identity) []Step {
	if !c.AppleServices {
		return nil
	}
	return []Step{
		{
			Title: "Configure vmgenid for Apple services",
			Argv:  []string{"qm", "set", vmid, "--vmgenid", id.vmgenid},
			Risk:  RiskSafe,
		},
		{
			Title: "Configure static MAC for Apple services",
			Argv: []string{
				"qm", "set", vmid,
				"--net0", fmt.Sprintf("vmxnet3,bridge=%s,macaddr=%s,firewall=0", c.Bridge, id.mac),
			},
			Risk: RiskSafe,
		},
	}
}

// probeImportVerb asks qm whether the modern `disk import` verb exists,
// falling back to the pre-7.2 `importdisk`. The probe result is cached for
// the planner's lifetime.
func (p *Planner) probeImportVerb() []string {
	if p.importVerb != nil {
		return p.importVerb
	}
	p.importVerb = []string{"importdisk"}
	if p.Runner != nil {
		res := pve.Qm(p.Runner, "help", "disk")
		if res.Ok && strings.Contains(res.Output, "import") {
			p.importVerb = []string{"disk", "import"}
		}
	}
	return p.importVerb
}
