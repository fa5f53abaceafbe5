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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/hfsplus"
	"github.com/lucid-fabrics/osx-proxmox-next/plistpatch"
)

// The helper sub-commands are called back into by the generated plan
// scripts: plist and HFS+ edits run in-process instead of through an
// embedded interpreter one-liner. Hidden from help output.
var (
	cmdHelper = &cobra.Command{
		Use:    "helper",
		Short:  "Internal helpers invoked by generated plan scripts",
		Hidden: true,
	}

	cmdPatchPlist = &cobra.Command{
		Use:   "patch-plist <config.plist> [--set k=v]... [--set-data k=hex]... [--set-list k=a,b]... [--enable-kext NAME]...",
		Short: "Apply an ordered edit list to an OpenCore config.plist",
		// Flags are parsed by hand so the edit order on the command
		// line is the order applied.
		DisableFlagParsing: true,
		RunE:               runPatchPlist,
	}

	cmdHfsAttr = &cobra.Command{
		Use:   "hfs-attr <image>",
		Short: "Fix HFS+ volume attributes so Linux mounts the recovery read-write",
		Args:  cobra.ExactArgs(1),
		RunE:  runHfsAttr,
	}
)

func init() {
	cmdHelper.AddCommand(cmdPatchPlist, cmdHfsAttr)
	root.AddCommand(cmdHelper)
}

func runPatchPlist(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s", cmd.Use)
	}
	plistPath := args[0]

	var edits []plistpatch.Edit
	rest := args[1:]
	for i := 0; i < len(rest); i += 2 {
		flag := rest[i]
		if i+1 >= len(rest) {
			return fmt.Errorf("%s needs a value", flag)
		}
		edit, err := plistpatch.ParseFlag(flag, rest[i+1])
		if err != nil {
			return err
		}
		edits = append(edits, edit)
	}
	if len(edits) == 0 {
		return fmt.Errorf("no edits given")
	}

	if err := plistpatch.PatchFile(plistPath, edits); err != nil {
		return err
	}
	cmd.Printf("config.plist patched (%d edits)\n", len(edits))
	return nil
}

func runHfsAttr(cmd *cobra.Command, args []string) error {
	attrs, err := hfsplus.FixVolumeAttributes(runner, args[0])
	if err != nil {
		return err
	}
	cmd.Printf("HFS+ flags fixed (attributes=%#x)\n", attrs)
	return nil
}
