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

package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
	"github.com/lucid-fabrics/osx-proxmox-next/util"
)

// RollbackSnapshot records where the prior VM config was dumped before a
// live apply.
type RollbackSnapshot struct {
	VMID int
	Path string
}

// CreateSnapshot dumps the current qm config (if the VM exists) under
// generated/snapshots/. A missing VM still produces a snapshot file so the
// rollback hints always have something to point at.
func (e *Executor) CreateSnapshot(vmid int) (RollbackSnapshot, error) {
	dir := filepath.Join(e.OutputDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return RollbackSnapshot{}, errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("vm-%d-%s.conf", vmid, util.UTCStamp()))

	res := pve.Qm(e.Runner, "config", strconv.Itoa(vmid))
	content := res.Output + "\n"
	if !res.Ok {
		content = "# No existing VM config captured\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return RollbackSnapshot{}, errors.Wrapf(err, "writing %s", path)
	}
	return RollbackSnapshot{VMID: vmid, Path: path}, nil
}

// RollbackHints renders the remediation list shown after a failed live
// apply.
func RollbackHints(s RollbackSnapshot) []string {
	return []string{
		fmt.Sprintf("Review snapshot: %s", s.Path),
		fmt.Sprintf("If needed: qm destroy %d --purge", s.VMID),
		"Re-apply previous known-good config from snapshot content.",
	}
}
