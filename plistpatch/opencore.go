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

package plistpatch

// appleNVRAMGUID is the NVRAM namespace macOS reads boot-args and SIP
// configuration from.
const appleNVRAMGUID = "7C436110-AB2A-4BBB-A880-FE41995C9F82"

// OpenCoreOptions selects the conditional parts of the config edit list.
type OpenCoreOptions struct {
	VerboseBoot bool
	// AMDKernelQuirks flips the power-management locks AMD hosts need.
	// Hybrid Intel hosts use the emulated CPU without these.
	AMDKernelQuirks bool

	// PlatformInfo is written only when Apple services are requested and
	// a serial is set (supplied or generated).
	AppleServices bool
	Serial        string
	Model         string
	UUID          string
	MLB           string
	ROMHex        string
}

// OpenCoreEdits is the ordered edit list applied to a freshly copied
// config.plist. SecureBootModel must be Disabled whenever DmgLoading is
// Any; OpenCore refuses the combination otherwise.
func OpenCoreEdits(opts OpenCoreOptions) []Edit {
	bootArgs := "keepsyms=1 debug=0x100"
	if opts.VerboseBoot {
		bootArgs += " -v"
	}

	nvramAdd := "NVRAM.Add." + appleNVRAMGUID
	edits := []Edit{
		Set("Misc.Security.ScanPolicy", "0"),
		Set("Misc.Security.DmgLoading", "Any"),
		Set("Misc.Security.SecureBootModel", "Disabled"),
		Set("Misc.Boot.Timeout", "15"),
		Set("Misc.Boot.PickerAttributes", "17"),
		Set("Misc.Boot.HideAuxiliary", "true"),
		Set("Misc.Boot.PickerMode", "External"),
		Set("Misc.Boot.PickerVariant", `Acidanthera\Syrah`),
		// csr-active-config is little-endian 0x670F0000.
		SetData(nvramAdd+".csr-active-config", []byte{0x67, 0x0F, 0x00, 0x00}),
		Set(nvramAdd+".boot-args", bootArgs),
		SetData(nvramAdd+".prev-lang:kbd", []byte("en-US:0")),
		// Purge stale NVRAM values so the Add entries take effect.
		SetList("NVRAM.Delete."+appleNVRAMGUID, "csr-active-config", "boot-args", "prev-lang:kbd"),
		Set("NVRAM.WriteFlash", "true"),
		// The shipped image has VirtualSMC disabled.
		EnableKext("VirtualSMC"),
	}

	if opts.AMDKernelQuirks {
		edits = append(edits,
			Set("Kernel.Quirks.AppleCpuPmCfgLock", "true"),
			Set("Kernel.Quirks.AppleXcpmCfgLock", "true"),
		)
	}

	if opts.AppleServices && opts.Serial != "" {
		edits = append(edits,
			Set("PlatformInfo.Generic.SystemSerialNumber", opts.Serial),
			Set("PlatformInfo.Generic.SystemProductName", opts.Model),
			Set("PlatformInfo.Generic.SystemUUID", opts.UUID),
			Set("PlatformInfo.Generic.MLB", opts.MLB),
			Edit{Op: OpSetData, Path: "PlatformInfo.Generic.ROM", Value: opts.ROMHex},
			Set("PlatformInfo.Generic.UpdateSMBIOS", "true"),
			Set("PlatformInfo.Generic.UpdateDataHub", "true"),
		)
	}

	return edits
}
