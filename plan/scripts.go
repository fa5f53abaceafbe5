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
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/plistpatch"
)

// Fixed mount points owned by the currently executing plan step. Every
// script cleans stale holders before acquiring them.
const (
	srcMount      = "/tmp/oc-src"
	destMount     = "/tmp/oc-dest"
	recoveryMount = "/tmp/oc-recovery"
)

// openCoreDiskScript builds the idempotent, self-cleaning shell script
// that produces a 1 GiB GPT+ESP image from the shipped OpenCore ISO and
// patches its config.plist in place via the helper sub-command. Only
// shell-quoted paths and trusted literals are interpolated.
func (p *Planner) openCoreDiskScript(c *config.VmConfig, id identity, srcISO, dest string) string {
	src := shellquote.Join(srcISO)
	dst := shellquote.Join(dest)

	patch := p.patchPlistCommand(c, id)

	parts := []string{
		// Clean up stale mounts and loop devices from any previous
		// failed run; best-effort on purpose.
		"umount " + srcMount + " 2>/dev/null; umount " + destMount + " 2>/dev/null; " +
			staleLoopCleanup(src) + staleLoopCleanup(dst) +
			"dd if=/dev/zero of=" + dst + " bs=1M count=1024",
		"sgdisk -Z " + dst,
		"sgdisk -n 1:0:0 -t 1:EF00 -c 1:OPENCORE " + dst,
		"SRC_LOOP=$(losetup -P --find --show " + src + ")",
		partprobeRetry("$SRC_LOOP") + " mkdir -p " + srcMount,
		// Detect the source's FAT partition by filesystem type, not
		// index: the shipped ISOs have moved the ESP around between
		// releases.
		`SRC_PART=$(blkid -o device $SRC_LOOP ${SRC_LOOP}p* 2>/dev/null ` +
			`| xargs -I{} sh -c 'blkid -s TYPE -o value {} 2>/dev/null | grep -q vfat && echo {}' ` +
			`| head -1)`,
		`{ [ -n "$SRC_PART" ] && mount "$SRC_PART" ` + srcMount +
			` || { echo "WARN: no vfat partition found, mounting raw"; mount $SRC_LOOP ` + srcMount + `; }; }`,
		"mountpoint -q " + srcMount,
		"DEST_LOOP=$(losetup -P --find --show " + dst + ")",
		partprobeRetry("$DEST_LOOP") + " mkfs.fat -F 32 -n OPENCORE ${DEST_LOOP}p1",
		"mkdir -p " + destMount + " && mount ${DEST_LOOP}p1 " + destMount,
		// cp -a with the /. suffix copies hidden files too.
		"cp -a " + srcMount + "/. " + destMount + "/",
		"[ -d " + destMount + "/EFI/OC ]",
		patch,
		// Hide the OpenCore entry from the boot picker; it stays
		// reachable behind the picker's auxiliary toggle.
		"echo Auxiliary > " + destMount + "/.contentVisibility",
		lazyUmount(srcMount) + " && losetup -d $SRC_LOOP",
		lazyUmount(destMount) + " && losetup -d $DEST_LOOP",
	}
	return strings.Join(parts, " && ")
}

// patchPlistCommand renders the helper invocation with the full ordered
// edit list, so the plan shows every key the step will touch.
func (p *Planner) patchPlistCommand(c *config.VmConfig, id identity) string {
	opts := plistpatch.OpenCoreOptions{
		VerboseBoot:     c.VerboseBoot,
		AMDKernelQuirks: p.CPU.Vendor == hostinfo.VendorAMD,
		AppleServices:   c.AppleServices,
		Serial:          id.serial,
		Model:           id.model,
		UUID:            id.uuid,
		MLB:             id.mlb,
		ROMHex:          id.rom,
	}
	argv := []string{p.HelperPath, "helper", "patch-plist", destMount + "/EFI/OC/config.plist"}
	for _, edit := range plistpatch.OpenCoreEdits(opts) {
		argv = append(argv, edit.Flag()...)
	}
	return shellquote.Join(argv...)
}

// recoveryStampScript builds the script that makes the recovery volume
// mountable read-write, writes the boot-picker label into the blessed
// directory and stages the installer icon as the volume icon.
func (p *Planner) recoveryStampScript(image, label string) string {
	img := shellquote.Join(image)
	details := recoveryMount + "/System/Library/CoreServices/.contentDetails"

	parts := []string{
		shellquote.Join(p.HelperPath, "helper", "hfs-attr", image),
		"umount " + recoveryMount + " 2>/dev/null; " +
			staleLoopCleanup(img) +
			"RLOOP=$(losetup -P --find --show " + img + ")",
		partprobeRetry("$RLOOP") + " mkdir -p " + recoveryMount,
		"mount -t hfsplus -o rw ${RLOOP}p1 " + recoveryMount,
		"rm -f " + details + " 2>/dev/null; printf %s " + shellquote.Join(label) + " > " + details,
		`ICON=$(find ` + recoveryMount + ` -path '*/Install macOS*/Contents/Resources/InstallAssistant.icns' 2>/dev/null | head -1)`,
		`if [ -n "$ICON" ]; then ` +
			`rm -f ` + recoveryMount + `/.VolumeIcon.icns; ` +
			`cp "$ICON" ` + recoveryMount + `/.VolumeIcon.icns && echo "Volume icon set from $ICON"; ` +
			`else echo "No InstallAssistant.icns found, using default icon"; fi`,
		lazyUmount(recoveryMount) + " && losetup -d $RLOOP",
	}
	return strings.Join(parts, " && ")
}

// importAttachScript imports a disk image into a storage and attaches the
// resulting volume. The storage reference is scraped from the import
// output; the `'\K` regex matches both old and new qm phrasing. When
// repairGPT is set the first 2048 sectors are re-written from the source
// image: thin-provisioned LVM imports sometimes corrupt the GPT header.
func importAttachScript(importArgs []string, vmid, image, storage, slot string, repairGPT bool) string {
	img := shellquote.Join(image)
	importCmd := shellquote.Join(append(append([]string{"qm"}, importArgs...), vmid, image, storage)...)

	script := "REF=$(" + importCmd + " 2>&1 | " +
		"grep 'successfully imported' | grep -oP \"'\\K[^']+\") && " +
		"qm set " + vmid + " --" + slot + " $REF,media=disk"
	if repairGPT {
		script += " && DEV=$(pvesm path $REF) && " +
			"dd if=" + img + " of=$DEV bs=512 count=2048 conv=notrunc 2>/dev/null"
	}
	return script
}

// staleLoopCleanup detaches loop devices still bound to a (quoted) image
// path. Trailing space included so callers can concatenate.
func staleLoopCleanup(quotedImage string) string {
	return "for lo in $(losetup -j " + quotedImage + " -O NAME --noheadings 2>/dev/null); do losetup -d $lo; done; "
}

// partprobeRetry re-reads the partition table up to 5 times; slow storage
// needs a beat before the partition nodes appear. Trailing semicolon so
// the loop's exit status never aborts the chain.
func partprobeRetry(loopVar string) string {
	return "for i in 1 2 3 4 5; do partprobe " + loopVar + " 2>/dev/null && break; sleep 1; done;"
}

// lazyUmount falls back to a lazy unmount when the mount point is busy.
func lazyUmount(mountPoint string) string {
	return "{ umount " + mountPoint + " || umount -l " + mountPoint + "; }"
}
