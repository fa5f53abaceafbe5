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

package hfsplus

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

const sgdiskOutput = `Partition GUID code: 48465300-0000-11AA-AA11-00306543ECAC (Apple HFS/HFS+)
Partition unique GUID: 0FC63DAF-8483-4772-8E79-3D69D8477DE4
First sector: 2048 (at 1024.0 KiB)
Last sector: 1261567 (at 616.0 MiB)
Partition size: 1259520 sectors (615.0 MiB)
Partition name: 'Recovery'`

func TestFixVolumeAttributes(t *testing.T) {
	image := filepath.Join(t.TempDir(), "recovery.img")
	offset := int64(2048*512 + 1024 + 4)

	data := make([]byte, offset+4)
	// Locked and not cleanly unmounted, as Apple ships it.
	binary.BigEndian.PutUint32(data[offset:], 0x00000800)
	if err := os.WriteFile(image, data, 0644); err != nil {
		t.Fatal(err)
	}

	r := pve.NewRecordingRunner()
	r.Respond("sgdisk -i 1 "+image, pve.Result{Ok: true, Output: sgdiskOutput})

	attrs, err := FixVolumeAttributes(r, image)
	if err != nil {
		t.Fatal(err)
	}
	if attrs&volumeUnmountedBit == 0 {
		t.Error("unmounted bit should be set")
	}
	if attrs&volumeSoftwareLockBit != 0 {
		t.Error("software lock bit should be cleared")
	}

	raw, err := os.ReadFile(image)
	if err != nil {
		t.Fatal(err)
	}
	onDisk := binary.BigEndian.Uint32(raw[offset:])
	if onDisk != attrs {
		t.Fatalf("on-disk attributes %#x != returned %#x", onDisk, attrs)
	}
	if onDisk != 0x100 {
		t.Fatalf("attributes = %#x, want 0x100", onDisk)
	}
}

func TestFixVolumeAttributesSgdiskFailure(t *testing.T) {
	r := pve.NewRecordingRunner()
	r.Default = pve.Result{Ok: false, ReturnCode: 2, Output: "Problem opening image"}
	if _, err := FixVolumeAttributes(r, "/nonexistent.img"); err == nil {
		t.Fatal("expected an error when sgdisk fails")
	}
}

func TestFixVolumeAttributesBadOutput(t *testing.T) {
	r := pve.NewRecordingRunner()
	r.Default = pve.Result{Ok: true, Output: "no sector line here"}
	if _, err := FixVolumeAttributes(r, "/nonexistent.img"); err == nil {
		t.Fatal("expected an error on unparsable sgdisk output")
	}
}
