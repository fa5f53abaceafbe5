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

// Package diagnose summarizes host health, maps failures to remediation
// hints and exports support bundles.
package diagnose

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/lucid-fabrics/osx-proxmox-next/preflight"
	"github.com/lucid-fabrics/osx-proxmox-next/util"
)

// HealthStatus condenses the preflight results for dashboards.
type HealthStatus struct {
	Score   int
	Total   int
	Summary string
}

func BuildHealthStatus() HealthStatus {
	return healthFromChecks(preflight.Run())
}

func healthFromChecks(checks []preflight.Check) HealthStatus {
	ok := 0
	for _, c := range checks {
		if c.Ok {
			ok++
		}
	}
	return HealthStatus{
		Score:   ok,
		Total:   len(checks),
		Summary: fmt.Sprintf("Health %d/%d checks", ok, len(checks)),
	}
}

// RecoveryGuide maps free-form failure text to a short remediation list.
func RecoveryGuide(reason string) []string {
	hints := []string{
		"Re-run Host Preflight and resolve all FAIL checks.",
		"Confirm OpenCore and installer images exist in expected paths.",
		"Re-generate plan and compare against previous successful plan.",
	}
	lowered := strings.ToLower(reason)
	if strings.Contains(lowered, "boot") {
		hints = append(hints, "Check VM boot order and attached media in qm config.")
	}
	if strings.Contains(lowered, "asset") || strings.Contains(lowered, "iso") {
		hints = append(hints, "Re-stage installer/recovery image and verify file size/checksum.")
	}
	if strings.Contains(lowered, "download") || strings.Contains(lowered, "network") {
		hints = append(hints, "Check outbound connectivity to github.com and osrecovery.apple.com.")
	}
	return hints
}

// ExportBundle gzips generated/logs and generated/snapshots into a
// timestamped support bundle and returns its path.
func ExportBundle(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", outputDir)
	}
	bundlePath := filepath.Join(outputDir, "support-bundle-"+util.UTCStamp()+".tar.gz")

	f, err := os.Create(bundlePath)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", bundlePath)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, sub := range []string{"logs", "snapshots"} {
		dir := filepath.Join(outputDir, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := addTree(tw, dir, sub); err != nil {
			return "", err
		}
	}
	return bundlePath, nil
}

func addTree(tw *tar.Writer, dir, arcRoot string) error {
	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.Join(arcRoot, rel)
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}
