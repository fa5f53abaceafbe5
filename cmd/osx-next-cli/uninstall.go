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

	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/executor"
	"github.com/lucid-fabrics/osx-proxmox-next/plan"
)

var (
	uninstallVMID    int
	uninstallPurge   bool
	uninstallExecute bool

	cmdUninstall = &cobra.Command{
		Use:   "uninstall",
		Short: "Destroy an existing macOS VM",
		RunE:  runUninstall,
	}
)

func init() {
	cmdUninstall.Flags().IntVar(&uninstallVMID, "vmid", 0, "VM ID to destroy")
	cmdUninstall.Flags().BoolVar(&uninstallPurge, "purge", false, "Also delete all disk images")
	cmdUninstall.Flags().BoolVar(&uninstallExecute, "execute", false, "Actually run (default is dry run)")
	cobra.CheckErr(cmdUninstall.MarkFlagRequired("vmid"))
	root.AddCommand(cmdUninstall)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	if uninstallVMID < 100 || uninstallVMID > 999999 {
		return cli.Exit(exitValidation, "VMID must be between 100 and 999999.")
	}

	exec := executor.New(runner)

	if uninstallExecute {
		info := plan.FetchVmInfo(runner, uninstallVMID)
		if info == nil {
			return cli.Exit(exitValidation, fmt.Sprintf("VM %d not found.", uninstallVMID))
		}
		cmd.Printf("VM %d: %s (%s)\n", uninstallVMID, info.Name, info.Status)

		snapshot, err := exec.CreateSnapshot(uninstallVMID)
		if err != nil {
			return err
		}
		cmd.Printf("Snapshot saved: %s\n", snapshot.Path)
	} else {
		cmd.Printf("Target: VM %d\n", uninstallVMID)
	}

	steps := plan.BuildDestroyPlan(uninstallVMID, uninstallPurge)

	if !uninstallExecute {
		for i, step := range steps {
			cmd.Printf("%02d. %s\n", i+1, step.Title)
			cmd.Printf("    %s\n", step.Command())
		}
		return nil
	}

	result, err := exec.Apply(steps, true, applyProgress(cmd))
	if err != nil {
		return err
	}
	if result.Ok {
		cmd.Printf("Destroy OK. Log: %s\n", result.LogPath)
		return nil
	}
	cmd.Printf("Destroy FAILED. Log: %s\n", result.LogPath)
	return cli.Exit(exitDestroy, "")
}
