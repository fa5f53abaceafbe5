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
	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/diagnose"
	"github.com/lucid-fabrics/osx-proxmox-next/preflight"
)

var (
	cmdPreflight = &cobra.Command{
		Use:   "preflight",
		Short: "Check the host for everything a macOS guest needs",
		RunE:  runPreflight,
	}

	cmdBundle = &cobra.Command{
		Use:   "bundle",
		Short: "Export a support bundle of logs and snapshots",
		RunE:  runBundle,
	}

	cmdGuide = &cobra.Command{
		Use:   "guide [reason]",
		Short: "Print remediation hints for a failure",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGuide,
	}
)

func init() {
	root.AddCommand(cmdPreflight, cmdBundle, cmdGuide)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	for _, check := range preflight.Run() {
		mark := "OK  "
		if !check.Ok {
			mark = "FAIL"
		}
		cmd.Printf("%s %s: %s\n", mark, check.Name, check.Details)
	}
	return nil
}

func runBundle(cmd *cobra.Command, args []string) error {
	path, err := diagnose.ExportBundle("generated")
	if err != nil {
		return err
	}
	cmd.Println(path)
	return nil
}

func runGuide(cmd *cobra.Command, args []string) error {
	reason := "boot issue"
	if len(args) > 0 {
		reason = args[0]
	}
	for _, hint := range diagnose.RecoveryGuide(reason) {
		cmd.Println(hint)
	}
	return nil
}
