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
	"fmt"
	"os"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/config"
	"github.com/lucid-fabrics/osx-proxmox-next/fetch"
	"github.com/lucid-fabrics/osx-proxmox-next/hostinfo"
)

var (
	downloadMacOS        string
	downloadDest         string
	downloadOpenCoreOnly bool
	downloadRecoveryOnly bool

	cmdDownload = &cobra.Command{
		Use:   "download",
		Short: "Download the OpenCore ISO and macOS recovery/installer image",
		RunE:  runDownload,
	}
)

func init() {
	cmdDownload.Flags().StringVar(&downloadMacOS, "macos", "", "macOS target (ventura, sonoma, sequoia, tahoe)")
	cmdDownload.Flags().StringVar(&downloadDest, "dest", "", "Destination directory (default: first ISO storage)")
	cmdDownload.Flags().BoolVar(&downloadOpenCoreOnly, "opencore-only", false, "Only download the OpenCore ISO")
	cmdDownload.Flags().BoolVar(&downloadRecoveryOnly, "recovery-only", false, "Only download the recovery/installer image")
	cobra.CheckErr(cmdDownload.MarkFlagRequired("macos"))
	root.AddCommand(cmdDownload)
}

func runDownload(cmd *cobra.Command, args []string) error {
	release, ok := config.ReleaseFor(downloadMacOS)
	if !ok {
		return cli.Exit(exitValidation, fmt.Sprintf("unsupported macOS release %q", downloadMacOS))
	}

	dest := downloadDest
	if dest == "" {
		dest = hostinfo.DetectISOStorage(runner)[0]
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	client := fetch.NewClient(runner)
	failed := false

	if !downloadRecoveryOnly {
		cmd.Printf("Downloading OpenCore image for %s...\n", downloadMacOS)
		path, err := client.DownloadOpenCore(context.Background(), downloadMacOS, dest, terminalProgress)
		if err != nil {
			cmd.Printf("\nOpenCore download failed: %v\n", err)
			printHint(cmd, err)
			failed = true
		} else {
			cmd.Printf("\nDownloaded: %s\n", path)
		}
	}

	if !downloadOpenCoreOnly {
		var path string
		var err error
		if release.Channel == config.ChannelPreview {
			cmd.Printf("Downloading full installer for %s (preview)...\n", downloadMacOS)
			path, err = client.DownloadFullInstaller(downloadMacOS, dest, terminalProgress)
		} else {
			cmd.Printf("Downloading recovery image for %s...\n", downloadMacOS)
			path, err = client.DownloadRecovery(downloadMacOS, dest, terminalProgress)
		}
		if err != nil {
			cmd.Printf("\nRecovery download failed: %v\n", err)
			printHint(cmd, err)
			failed = true
		} else {
			cmd.Printf("\nDownloaded: %s\n", path)
		}
	}

	if failed {
		return cli.Exit(exitDownload, "")
	}
	return nil
}

// terminalProgress renders a single-line progress indicator.
func terminalProgress(p fetch.Progress) {
	down := bytefmt.ByteSize(uint64(p.Downloaded))
	if p.Total > 0 {
		pct := p.Downloaded * 100 / p.Total
		fmt.Printf("\r[%s] %s/%s (%d%%)", p.Phase, down, bytefmt.ByteSize(uint64(p.Total)), pct)
	} else {
		fmt.Printf("\r[%s] %s", p.Phase, down)
	}
}

func printHint(cmd *cobra.Command, err error) {
	if de, ok := err.(*fetch.Error); ok && de.Hint != "" {
		cmd.Printf("Hint: %s\n", de.Hint)
	}
}
