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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/assets"
	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
	"github.com/lucid-fabrics/osx-proxmox-next/plan"
)

var (
	planFlags     vmFlags
	planScriptOut string

	cmdPlan = &cobra.Command{
		Use:   "plan",
		Short: "Print the install plan without touching the host",
		RunE:  runPlan,
	}
)

func init() {
	planFlags.register(cmdPlan)
	cmdPlan.Flags().StringVar(&planScriptOut, "script-out", "", "Also write the plan as a bash script")
	root.AddCommand(cmdPlan)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg := planFlags.toConfig()
	if issues := config.Validate(cfg); len(issues) > 0 {
		for _, issue := range issues {
			cmd.Printf("ERROR: %s\n", issue)
		}
		return cli.Exit(exitValidation, "")
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

	for i, step := range steps {
		cmd.Printf("%02d. %s\n", i+1, step.Title)
		cmd.Printf("    %s\n", step.Command())
	}

	if planScriptOut != "" {
		if err := os.MkdirAll(filepath.Dir(planScriptOut), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(planScriptOut, []byte(plan.RenderScript(cfg, steps)), 0755); err != nil {
			return err
		}
		cmd.Printf("Script written: %s\n", planScriptOut)
	}
	return nil
}

// reportMissingAssets prints MISSING lines plus fetch hints and returns
// the assets exit code when anything is absent.
func reportMissingAssets(cmd *cobra.Command, cfg *config.VmConfig) int {
	var missing []assets.Check
	for _, check := range assets.Required(cfg) {
		if !check.Present {
			missing = append(missing, check)
		}
	}
	if len(missing) == 0 {
		return 0
	}
	for _, item := range missing {
		cmd.Printf("MISSING: %s: %s\n", item.Name, item.Path)
	}
	for _, hint := range assets.SuggestedFetchCommands(cfg) {
		cmd.Println(hint)
	}
	return exitAssets
}

func printCPUMode(cmd *cobra.Command, cfg *config.VmConfig, cpu hostinfo.CpuInfo) {
	var mode string
	switch {
	case cfg.CPUModel != "":
		mode = "override: " + cfg.CPUModel
	case cpu.NeedsEmulatedCPU:
		mode = "Cascadelake-Server emulation"
	default:
		mode = "native host passthrough"
	}
	label := cpu.ModelName
	if label == "" {
		label = cpu.Vendor
	}
	cmd.Printf("CPU: %s (%s)\n", label, mode)
}
