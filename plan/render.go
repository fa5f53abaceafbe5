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
	"fmt"
	"strings"
	"time"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
)

// RenderScript writes a plan as a standalone bash script for review or
// air-gapped execution.
func RenderScript(c *config.VmConfig, steps []Step) string {
	release, _ := config.ReleaseFor(c.MacOS)
	now := time.Now().UTC().Format("2006-01-02 15:04:05Z")

	var sb strings.Builder
	sb.WriteString("#!/usr/bin/env bash\n")
	sb.WriteString("set -euo pipefail\n\n")
	fmt.Fprintf(&sb, "# Generated by osx-proxmox-next on %s\n", now)
	fmt.Fprintf(&sb, "# Target: %s (channel=%s)\n", release.Label, release.Channel)
	fmt.Fprintf(&sb, "# VMID: %d\n\n", c.VMID)

	for i, step := range steps {
		fmt.Fprintf(&sb, "echo '[%d/%d] %s'\n", i+1, len(steps), step.Title)
		sb.WriteString(step.Command())
		sb.WriteString("\n\n")
	}
	return sb.String()
}
