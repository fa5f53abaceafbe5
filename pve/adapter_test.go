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

package pve

import (
	"strings"
	"testing"
)

func TestAdapterCapturesOutputAndReturnCode(t *testing.T) {
	a := NewAdapter()

	res := a.Run([]string{"sh", "-c", "echo out; echo err >&2"})
	if !res.Ok || res.ReturnCode != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Fatalf("stdout and stderr must both be captured: %q", res.Output)
	}

	res = a.Run([]string{"sh", "-c", "exit 3"})
	if res.Ok || res.ReturnCode != 3 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAdapterMissingBinary(t *testing.T) {
	a := NewAdapter()
	res := a.Run([]string{"definitely-not-a-binary-xyz"})
	if res.Ok {
		t.Fatal("missing binary must not be ok")
	}
	if res.Output == "" {
		t.Fatal("missing binary should carry an error message")
	}
}

func TestRecordingRunnerPrefixes(t *testing.T) {
	r := NewRecordingRunner()
	r.Respond("qm", Result{Ok: true, Output: "generic"})
	r.Respond("qm status", Result{Ok: true, Output: "specific"})

	if got := r.Run([]string{"qm", "status", "901"}); got.Output != "specific" {
		t.Fatalf("longest prefix should win, got %+v", got)
	}
	if got := r.Run([]string{"qm", "list"}); got.Output != "generic" {
		t.Fatalf("shorter prefix should match, got %+v", got)
	}
	if got := r.Run([]string{"pvesm", "status"}); !got.Ok || got.Output != "" {
		t.Fatalf("unmatched argv should default to success, got %+v", got)
	}
	if len(r.Calls) != 3 {
		t.Fatalf("calls = %d", len(r.Calls))
	}
}

func TestHelpers(t *testing.T) {
	r := NewRecordingRunner()
	Qm(r, "start", "901")
	Pvesm(r, "status")
	Pvesh(r, "get", "/cluster/nextid")

	want := [][]string{
		{"qm", "start", "901"},
		{"pvesm", "status"},
		{"pvesh", "get", "/cluster/nextid"},
	}
	for i, call := range r.Calls {
		if strings.Join(call, " ") != strings.Join(want[i], " ") {
			t.Fatalf("call %d = %v, want %v", i, call, want[i])
		}
	}
}
