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

// Package assets locates the OpenCore and recovery/installer images on the
// host's ISO storages.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/util"
)

// DefaultISODir mirrors hostinfo.DefaultISODir; assets must not depend on
// the probe package, the resolver works from plain directories.
const DefaultISODir = "/var/lib/vz/template/iso"

const mntPve = "/mnt/pve"

// OpenCoreUniversalImage is the release asset that boots every supported
// release.
const OpenCoreUniversalImage = "opencore-osx-proxmox-vm.iso"

// Check is the shallow record front-ends and the executor share to decide
// whether an apply can proceed.
type Check struct {
	Name         string
	Path         string
	Present      bool
	Hint         string
	Downloadable bool
}

// SearchRoots returns the directories scanned for images, in priority
// order: the override (when set), the default ISO directory, then every
// /mnt/pve storage that carries a template/iso tree.
func SearchRoots(override string) []string {
	roots := []string{}
	if override != "" {
		roots = append(roots, override)
	}
	roots = append(roots, DefaultISODir)

	entries, err := os.ReadDir(mntPve)
	if err != nil {
		return roots
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		dir := filepath.Join(mntPve, name, "template", "iso")
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			roots = append(roots, dir)
		}
	}
	return roots
}

// ResolveOpenCore finds the staged OpenCore image for a release, or the
// canonical default path when nothing is staged. Exact names are tried
// before globs so a stray legacy image never shadows the shipped one.
func ResolveOpenCore(macos, isoDir string) string {
	patterns := []string{
		OpenCoreUniversalImage,
		fmt.Sprintf("opencore-%s.iso", macos),
		fmt.Sprintf("opencore*%s*.iso", macos),
		"opencore*.iso",
	}
	if match := findImage(SearchRoots(isoDir), patterns); match != "" {
		return match
	}
	return filepath.Join(defaultDir(isoDir), fmt.Sprintf("opencore-%s.iso", macos))
}

// ResolveRecoveryOrInstaller finds the recovery (or, for tahoe, the full
// installer) image for a config. An explicit installer path always wins.
func ResolveRecoveryOrInstaller(c *config.VmConfig) string {
	if c.InstallerPath != "" {
		return c.InstallerPath
	}
	roots := SearchRoots(c.ISODir)
	if c.MacOS == "tahoe" {
		patterns := []string{
			fmt.Sprintf("%s-full-installer.img", c.MacOS),
			"*tahoe*full*.iso",
			"*tahoe*.iso",
			"*26*.iso",
			"*InstallAssistant*.iso",
		}
		if match := findImage(roots, patterns); match != "" {
			return match
		}
	}
	patterns := []string{
		fmt.Sprintf("%s-recovery.img", c.MacOS),
		fmt.Sprintf("%s-recovery.iso", c.MacOS),
		fmt.Sprintf("%s-recovery.dmg", c.MacOS),
	}
	if match := findImage(roots, patterns); match != "" {
		return match
	}
	return filepath.Join(defaultDir(c.ISODir), fmt.Sprintf("%s-recovery.img", c.MacOS))
}

// Required lists the assets an apply needs, with resolution state.
func Required(c *config.VmConfig) []Check {
	opencore := ResolveOpenCore(c.MacOS, c.ISODir)
	recovery := ResolveRecoveryOrInstaller(c)
	return []Check{
		{
			Name:         "OpenCore image",
			Path:         opencore,
			Present:      util.IsRegularFile(opencore),
			Hint:         "Provide OpenCore ISO before apply mode.",
			Downloadable: true,
		},
		{
			Name:         "Installer / recovery image",
			Path:         recovery,
			Present:      util.IsRegularFile(recovery),
			Hint:         "Tahoe should use a full installer image path.",
			Downloadable: true,
		},
	}
}

// SuggestedFetchCommands renders copy-pasteable hints for missing assets.
func SuggestedFetchCommands(c *config.VmConfig) []string {
	dir := defaultDir(c.ISODir)
	cmds := []string{
		fmt.Sprintf("# Auto-download available — run: osx-next-cli download --macos %s", c.MacOS),
		fmt.Sprintf("# Or manually place OpenCore image at %s/opencore-%s.iso", dir, c.MacOS),
	}
	if c.MacOS == "tahoe" {
		cmds = append(cmds, "# Tahoe: provide a full installer image and set --installer-path")
	} else {
		cmds = append(cmds, fmt.Sprintf("# Or place recovery image at %s/%s-recovery.img", dir, c.MacOS))
	}
	return cmds
}

func defaultDir(override string) string {
	if override != "" {
		return override
	}
	return DefaultISODir
}

// findImage tries each pattern against every root before moving on to the
// next pattern, so exact filenames beat globs regardless of which storage
// they live on. Directories with matching names are skipped.
func findImage(roots, patterns []string) string {
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		for _, root := range roots {
			entries, err := os.ReadDir(root)
			if err != nil {
				continue
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			sort.Strings(names)
			for _, name := range names {
				ok, err := filepath.Match(pattern, strings.ToLower(name))
				if err != nil || !ok {
					continue
				}
				full := filepath.Join(root, name)
				if util.IsRegularFile(full) {
					return full
				}
			}
		}
	}
	return ""
}
