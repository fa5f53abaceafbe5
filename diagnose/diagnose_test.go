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

package diagnose

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucid-fabrics/osx-proxmox-next/preflight"
)

func TestHealthFromChecks(t *testing.T) {
	status := healthFromChecks([]preflight.Check{
		{Ok: true}, {Ok: false}, {Ok: true},
	})
	if status.Score != 2 || status.Total != 3 {
		t.Fatalf("status = %+v", status)
	}
	if status.Summary != "Health 2/3 checks" {
		t.Fatalf("summary = %q", status.Summary)
	}
}

func TestRecoveryGuideKeywords(t *testing.T) {
	base := RecoveryGuide("something odd happened")
	if len(base) != 3 {
		t.Fatalf("base guide = %v", base)
	}

	boot := RecoveryGuide("VM stuck at boot")
	if len(boot) != 4 || !strings.Contains(boot[3], "boot order") {
		t.Fatalf("boot guide = %v", boot)
	}

	asset := RecoveryGuide("missing ISO asset")
	found := false
	for _, hint := range asset {
		if strings.Contains(hint, "Re-stage installer/recovery image") {
			found = true
		}
	}
	if !found {
		t.Fatalf("asset guide = %v", asset)
	}
}

func TestExportBundle(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(logsDir, "apply-x.log"), []byte("log line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	snapsDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(snapsDir, "vm-901-x.conf"), []byte("name: m\n"), 0644); err != nil {
		t.Fatal(err)
	}

	bundle, err := ExportBundle(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(bundle), "support-bundle-") ||
		!strings.HasSuffix(bundle, ".tar.gz") {
		t.Fatalf("bundle name: %s", bundle)
	}

	f, err := os.Open(bundle)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
	}
	joined := strings.Join(names, " ")
	if !strings.Contains(joined, "logs/apply-x.log") || !strings.Contains(joined, "snapshots/vm-901-x.conf") {
		t.Fatalf("bundle members = %v", names)
	}
}

func TestExportBundleEmptyTree(t *testing.T) {
	if _, err := ExportBundle(t.TempDir()); err != nil {
		t.Fatalf("empty tree should still produce a bundle: %v", err)
	}
}
