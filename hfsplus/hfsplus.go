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

// Package hfsplus flips the volume-attribute bits of an HFS+ recovery
// image so the Linux hfsplus driver will mount it read-write: set
// kHFSVolumeUnmountedBit (cleanly unmounted) and clear
// kHFSVolumeSoftwareLockBit.
package hfsplus

import (
	"encoding/binary"
	"os"
	"regexp"
	"strconv"

	"github.com/coreos/pkg/capnslog"
	"github.com/pkg/errors"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

var plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "hfsplus")

const (
	sectorSize = 512
	// The attributes field sits 4 bytes into the volume header, which
	// itself starts 1024 bytes into the partition.
	attributesOffset = 1024 + 4

	volumeUnmountedBit    = 0x100
	volumeSoftwareLockBit = 0x800
)

var firstSectorRe = regexp.MustCompile(`First sector:\s*(\d+)`)

// FixVolumeAttributes locates the first partition of image via sgdisk and
// rewrites its HFS+ attributes field in place. It returns the new
// attribute value.
func FixVolumeAttributes(r pve.Runner, image string) (uint32, error) {
	start, err := firstPartitionSector(r, image)
	if err != nil {
		return 0, err
	}
	offset := start*sectorSize + attributesOffset

	f, err := os.OpenFile(image, os.O_RDWR, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", image)
	}
	defer f.Close()

	var buf [4]byte
	if _, err := f.ReadAt(buf[:], offset); err != nil {
		return 0, errors.Wrapf(err, "reading volume attributes at %d", offset)
	}
	attrs := binary.BigEndian.Uint32(buf[:])
	attrs = (attrs | volumeUnmountedBit) &^ volumeSoftwareLockBit
	binary.BigEndian.PutUint32(buf[:], attrs)
	if _, err := f.WriteAt(buf[:], offset); err != nil {
		return 0, errors.Wrapf(err, "writing volume attributes at %d", offset)
	}
	if err := f.Sync(); err != nil {
		return 0, errors.Wrapf(err, "syncing %s", image)
	}

	plog.Infof("HFS+ volume attributes fixed on %s (now %#x)", image, attrs)
	return attrs, nil
}

func firstPartitionSector(r pve.Runner, image string) (int64, error) {
	res := r.Run([]string{"sgdisk", "-i", "1", image})
	if !res.Ok {
		return 0, errors.Errorf("sgdisk -i 1 %s failed (rc=%d): %s", image, res.ReturnCode, res.Output)
	}
	m := firstSectorRe.FindStringSubmatch(res.Output)
	if m == nil {
		return 0, errors.Errorf("no first-sector line in sgdisk output: %s", res.Output)
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing first sector %q", m[1])
	}
	return start, nil
}
