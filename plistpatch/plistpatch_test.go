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

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"howett.net/plist"
)

// shippedConfig mimics the structure of the config.plist on the OpenCore
// image: VirtualSMC disabled, no NVRAM Delete dict.
func shippedConfig() map[string]interface{} {
	return map[string]interface{}{
		"Misc": map[string]interface{}{
			"Security": map[string]interface{}{
				"ScanPolicy":      uint64(17760515),
				"DmgLoading":      "Signed",
				"SecureBootModel": "Default",
			},
			"Boot": map[string]interface{}{
				"Timeout":          5,
				"PickerAttributes": 0,
				"HideAuxiliary":    false,
				"PickerMode":       "Builtin",
				"PickerVariant":    "Auto",
			},
		},
		"Kernel": map[string]interface{}{
			"Add": []interface{}{
				map[string]interface{}{
					"BundlePath": "Lilu.kext",
					"Enabled":    true,
				},
				map[string]interface{}{
					"BundlePath": "VirtualSMC.kext",
					"Enabled":    false,
				},
			},
			"Quirks": map[string]interface{}{
				"AppleCpuPmCfgLock": false,
				"AppleXcpmCfgLock":  false,
			},
		},
		"NVRAM": map[string]interface{}{
			"Add": map[string]interface{}{
				"7C436110-AB2A-4BBB-A880-FE41995C9F82": map[string]interface{}{
					"boot-args": "",
				},
			},
			"WriteFlash": false,
		},
		"PlatformInfo": map[string]interface{}{
			"Generic": map[string]interface{}{
				"SystemSerialNumber": "W00000000001",
			},
		},
	}
}

func dig(t *testing.T, root map[string]interface{}, path ...string) interface{} {
	t.Helper()
	var cur interface{} = root
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			t.Fatalf("path %v: %T is not a dict", path, cur)
		}
		cur, ok = m[key]
		if !ok {
			t.Fatalf("path %v: key %q missing", path, key)
		}
	}
	return cur
}

func TestApplyOpenCoreEdits(t *testing.T) {
	root := shippedConfig()
	edits := OpenCoreEdits(OpenCoreOptions{})
	if err := Apply(root, edits); err != nil {
		t.Fatal(err)
	}

	if got := dig(t, root, "Misc", "Security", "ScanPolicy"); got != 0 {
		t.Errorf("ScanPolicy = %v", got)
	}
	if got := dig(t, root, "Misc", "Security", "DmgLoading"); got != "Any" {
		t.Errorf("DmgLoading = %v", got)
	}
	if got := dig(t, root, "Misc", "Security", "SecureBootModel"); got != "Disabled" {
		t.Errorf("SecureBootModel = %v (must be Disabled with DmgLoading=Any)", got)
	}
	if got := dig(t, root, "Misc", "Boot", "Timeout"); got != 15 {
		t.Errorf("Timeout = %v", got)
	}
	if got := dig(t, root, "Misc", "Boot", "PickerAttributes"); got != 17 {
		t.Errorf("PickerAttributes = %v", got)
	}
	if got := dig(t, root, "Misc", "Boot", "HideAuxiliary"); got != true {
		t.Errorf("HideAuxiliary = %v", got)
	}
	if got := dig(t, root, "Misc", "Boot", "PickerVariant"); got != `Acidanthera\Syrah` {
		t.Errorf("PickerVariant = %v", got)
	}

	csr := dig(t, root, "NVRAM", "Add", "7C436110-AB2A-4BBB-A880-FE41995C9F82", "csr-active-config")
	if data, ok := csr.([]byte); !ok || len(data) != 4 || data[0] != 0x67 || data[1] != 0x0F {
		t.Errorf("csr-active-config = %#v, want little-endian 0x670F0000", csr)
	}
	if got := dig(t, root, "NVRAM", "Add", "7C436110-AB2A-4BBB-A880-FE41995C9F82", "boot-args"); got != "keepsyms=1 debug=0x100" {
		t.Errorf("boot-args = %v", got)
	}
	prevLang := dig(t, root, "NVRAM", "Add", "7C436110-AB2A-4BBB-A880-FE41995C9F82", "prev-lang:kbd")
	if data, ok := prevLang.([]byte); !ok || string(data) != "en-US:0" {
		t.Errorf("prev-lang:kbd = %#v", prevLang)
	}

	// The Delete dict did not exist in the shipped config; it must be
	// created with all three keys so Add takes effect.
	deleted := dig(t, root, "NVRAM", "Delete", "7C436110-AB2A-4BBB-A880-FE41995C9F82")
	list, ok := deleted.([]interface{})
	if !ok || len(list) != 3 {
		t.Fatalf("NVRAM.Delete = %#v", deleted)
	}
	if got := dig(t, root, "NVRAM", "WriteFlash"); got != true {
		t.Errorf("WriteFlash = %v", got)
	}

	// VirtualSMC enabled, Lilu untouched.
	add := dig(t, root, "Kernel", "Add").([]interface{})
	for _, raw := range add {
		entry := raw.(map[string]interface{})
		if strings.Contains(entry["BundlePath"].(string), "VirtualSMC") && entry["Enabled"] != true {
			t.Error("VirtualSMC should be enabled")
		}
	}

	// No AMD quirks without the option.
	if got := dig(t, root, "Kernel", "Quirks", "AppleCpuPmCfgLock"); got != false {
		t.Errorf("AppleCpuPmCfgLock = %v without AMD option", got)
	}
}

func TestApplyAMDQuirks(t *testing.T) {
	root := shippedConfig()
	if err := Apply(root, OpenCoreEdits(OpenCoreOptions{AMDKernelQuirks: true})); err != nil {
		t.Fatal(err)
	}
	if got := dig(t, root, "Kernel", "Quirks", "AppleCpuPmCfgLock"); got != true {
		t.Errorf("AppleCpuPmCfgLock = %v", got)
	}
	if got := dig(t, root, "Kernel", "Quirks", "AppleXcpmCfgLock"); got != true {
		t.Errorf("AppleXcpmCfgLock = %v", got)
	}
}

func TestVerboseBootAppendsFlag(t *testing.T) {
	root := shippedConfig()
	if err := Apply(root, OpenCoreEdits(OpenCoreOptions{VerboseBoot: true})); err != nil {
		t.Fatal(err)
	}
	got := dig(t, root, "NVRAM", "Add", "7C436110-AB2A-4BBB-A880-FE41995C9F82", "boot-args")
	if got != "keepsyms=1 debug=0x100 -v" {
		t.Errorf("boot-args = %v", got)
	}
}

func TestPlatformInfoEdits(t *testing.T) {
	root := shippedConfig()
	opts := OpenCoreOptions{
		AppleServices: true,
		Serial:        "C02XK0AAHX87",
		Model:         "iMacPro1,1",
		UUID:          "0F7A1B2C-3D4E-5F60-7182-93A4B5C6D7E8",
		MLB:           "C02739200GUF8JC0A",
		ROMHex:        "02DEADBEEF01",
	}
	if err := Apply(root, OpenCoreEdits(opts)); err != nil {
		t.Fatal(err)
	}
	if got := dig(t, root, "PlatformInfo", "Generic", "SystemSerialNumber"); got != "C02XK0AAHX87" {
		t.Errorf("SystemSerialNumber = %v", got)
	}
	rom := dig(t, root, "PlatformInfo", "Generic", "ROM")
	if data, ok := rom.([]byte); !ok || len(data) != 6 {
		t.Errorf("ROM = %#v, want 6 raw bytes", rom)
	}
	if got := dig(t, root, "PlatformInfo", "Generic", "UpdateSMBIOS"); got != true {
		t.Errorf("UpdateSMBIOS = %v", got)
	}
}

func TestPlatformInfoSkippedWithoutSerial(t *testing.T) {
	edits := OpenCoreEdits(OpenCoreOptions{AppleServices: true})
	for _, e := range edits {
		if strings.HasPrefix(e.Path, "PlatformInfo") {
			t.Fatalf("PlatformInfo edit %v emitted without a serial", e)
		}
	}
}

func TestFlagParseRoundTrip(t *testing.T) {
	for _, e := range OpenCoreEdits(OpenCoreOptions{AMDKernelQuirks: true}) {
		flag := e.Flag()
		parsed, err := ParseFlag(flag[0], flag[1])
		if err != nil {
			t.Fatalf("ParseFlag(%v): %v", flag, err)
		}
		if parsed.Op != e.Op || parsed.Path != e.Path || parsed.Value != e.Value {
			t.Fatalf("round trip mismatch: %+v != %+v", parsed, e)
		}
	}
}

func TestParseFlagRejects(t *testing.T) {
	if _, err := ParseFlag("--set", "novalue"); err == nil {
		t.Error("--set without = must fail")
	}
	if _, err := ParseFlag("--set-data", "a.b=nothex"); err == nil {
		t.Error("--set-data with non-hex value must fail")
	}
	if _, err := ParseFlag("--frobnicate", "x=y"); err == nil {
		t.Error("unknown flag must fail")
	}
}

func TestEnableKextMissing(t *testing.T) {
	root := map[string]interface{}{
		"Kernel": map[string]interface{}{"Add": []interface{}{}},
	}
	if err := Apply(root, []Edit{EnableKext("VirtualSMC")}); err == nil {
		t.Fatal("enabling a missing kext must fail")
	}
}

func TestPatchFileXMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.plist")
	raw, err := plist.MarshalIndent(shippedConfig(), plist.XMLFormat, "\t")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	if err := PatchFile(path, OpenCoreEdits(OpenCoreOptions{})); err != nil {
		t.Fatal(err)
	}

	reread, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	root := make(map[string]interface{})
	if _, err := plist.Unmarshal(reread, &root); err != nil {
		t.Fatal(err)
	}
	if got := dig(t, root, "Misc", "Security", "SecureBootModel"); got != "Disabled" {
		t.Errorf("SecureBootModel after round trip = %v", got)
	}
	boot := dig(t, root, "Misc", "Boot", "Timeout")
	if n, ok := boot.(uint64); !ok || n != 15 {
		t.Errorf("Timeout after round trip = %#v", boot)
	}
}
