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
	"github.com/coreos/pkg/capnslog"
	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

var (
	plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "main")

	root = &cobra.Command{
		Use:   "osx-next-cli [command]",
		Short: "Provision macOS guests on Proxmox VE",
	}

	// runner is the single toolchain seam shared by every sub-command.
	runner pve.Runner = pve.NewAdapter()
)

// Exit codes shared with scripts driving the CLI.
const (
	exitValidation = 2
	exitAssets     = 3
	exitApply      = 4
	exitDownload   = 5
	exitDestroy    = 6
)

func main() {
	cli.Execute(root)
}
