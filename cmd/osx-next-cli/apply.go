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
	"context"

	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/assets"
	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/executor"
	"github.com/lucid-fabrics/osx-proxmox-next/fetch"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/plan"
	"github.com/lucid-fabrics/osx-proxmox-next/preflight"
)

var (
	applyFlags   vmFlags
	applyExecute bool

	cmdApply = &cobra.Command{
		Use:   "apply",
		Short: "Apply the install plan (dry-run unless --execute)",
		RunE:  runApply,
	}
)

func init() {
	applyFlags.register(cmdApply)
	cmdApply.Flags().BoolVar(&applyExecute, "execute", false, "Execute the plan instead of dry-running it")
	root.AddCommand(cmdApply)
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg := applyFlags.toConfig()
	if issues := config.Validate(cfg); len(issues) > 0 {
		for _, issue := range issues {
			cmd.Printf("ERROR: %s\n", issue)
		}
		return cli.Exit(exitValidation, "")
	}

	if applyExecute {
		checks := preflight.Run()
		if !preflight.AllOk(checks) {
			for _, check := range checks {
				if !check.Ok {
					cmd.Printf("FAIL %s: %s\n", check.Name, check.Details)
				}
			}
			return cli.Exit(exitValidation, "preflight failed; resolve the checks above before a live apply")
		}
	}

	if hasMissingAssets(cfg) && !applyFlags.noDownload {
		autoDownloadMissing(cmd, cfg)
	}
	if code := reportMissingAssets(cmd, cfg); code != 0 {
		return cli.Exit(code, "")
	}

	cpu := hostinfo.DetectCPU("")
	printCPUMode(cmd, cfg, cpu)

	planner := newPlanner(cpu)
	steps, err := planner.BuildPlan(cfg)
	if err != nil {
		return cli.Exit(exitValidation, err.Error())
	}

	exec := executor.New(runner)

	var snapshot executor.RollbackSnapshot
	if applyExecute {
		snapshot, err = exec.CreateSnapshot(cfg.VMID)
		if err != nil {
			return err
		}
		cmd.Printf("Snapshot saved: %s\n", snapshot.Path)
	}

	result, err := exec.Apply(steps, applyExecute, applyProgress(cmd))
	if err != nil {
		return err
	}
	if result.Ok {
		cmd.Printf("Apply OK. Log: %s\n", result.LogPath)
		return nil
	}

	cmd.Printf("Apply FAILED. Log: %s\n", result.LogPath)
	if applyExecute {
		for _, hint := range executor.RollbackHints(snapshot) {
			cmd.Printf("ROLLBACK: %s\n", hint)
		}
	}
	return cli.Exit(exitApply, "")
}

func applyProgress(cmd *cobra.Command) executor.StepCallback {
	return func(index, total int, step plan.Step, result *executor.StepResult) {
		if result == nil {
			cmd.Printf("[%d/%d] %s...\n", index, total, step.Title)
			return
		}
		if result.Ok {
			cmd.Printf("[%d/%d] %s: ok\n", index, total, step.Title)
		} else {
			cmd.Printf("[%d/%d] %s: FAILED (rc=%d)\n%s\n", index, total, step.Title, result.ReturnCode, result.Output)
		}
	}
}

func hasMissingAssets(cfg *config.VmConfig) bool {
	for _, check := range assets.Required(cfg) {
		if !check.Present {
			return true
		}
	}
	return false
}

// autoDownloadMissing stages whichever of the two images is absent.
// Failures are reported but not fatal here; the asset re-check decides.
func autoDownloadMissing(cmd *cobra.Command, cfg *config.VmConfig) {
	release, _ := config.ReleaseFor(cfg.MacOS)
	destDir := cfg.ISODir
	if destDir == "" {
		destDir = hostinfo.DetectISOStorage(runner)[0]
	}
	client := fetch.NewClient(runner)

	for _, check := range assets.Required(cfg) {
		if check.Present || !check.Downloadable {
			continue
		}
		var err error
		switch {
		case check.Name == "OpenCore image":
			cmd.Printf("Downloading OpenCore image for %s...\n", cfg.MacOS)
			_, err = client.DownloadOpenCore(context.Background(), cfg.MacOS, destDir, terminalProgress)
		case release.Channel == config.ChannelPreview && cfg.InstallerPath == "":
			cmd.Printf("Downloading full installer for %s (preview)...\n", cfg.MacOS)
			_, err = client.DownloadFullInstaller(cfg.MacOS, destDir, terminalProgress)
		default:
			cmd.Printf("Downloading recovery image for %s...\n", cfg.MacOS)
			_, err = client.DownloadRecovery(cfg.MacOS, destDir, terminalProgress)
		}
		if err != nil {
			cmd.Printf("\nDownload failed: %v\n", err)
			printHint(cmd, err)
		} else {
			cmd.Println()
		}
	}
}
