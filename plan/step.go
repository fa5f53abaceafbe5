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

// Package plan turns a validated VM configuration into the ordered list of
// shell invocations that provisions a macOS guest, and the matching
// destroy plan.
package plan

import (
	"github.com/kballard/go-shellquote"
)

// Risk labels how a front-end should present a step.
type Risk string

const (
	RiskSafe   Risk = "safe"
	RiskWarn   Risk = "warn"
	RiskAction Risk = "action"
)

// Step is one plan entry. Steps are built fresh from a VmConfig and never
// mutated after emission; the executor consumes them read-only.
type Step struct {
	Title string
	Argv  []string
	Risk  Risk
}

// Command renders the argv in shell form. Arguments carrying shell
// metacharacters (the boot order's semicolons, the --args device string)
// come out single-quoted.
func (s Step) Command() string {
	return shellquote.Join(s.Argv...)
}
