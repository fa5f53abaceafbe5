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

// Package plistpatch edits OpenCore's config.plist as an explicit, ordered
// sequence of field mutations. The planner renders the sequence to
// `--set`-style flags on the hidden helper sub-command, so the exact edits
// are visible in every generated plan.
package plistpatch

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"howett.net/plist"
)

// Op is the mutation kind.
type Op int

const (
	// OpSet assigns a scalar; the value is typed by shape (bool, int,
	// string).
	OpSet Op = iota
	// OpSetData assigns raw bytes given as hex.
	OpSetData
	// OpSetList assigns a list of strings given comma-separated.
	OpSetList
	// OpEnableKext flips Enabled on every Kernel.Add entry whose
	// BundlePath contains the value.
	OpEnableKext
)

// Edit is one mutation. Path is dot-separated; individual plist keys never
// contain dots (the NVRAM GUID uses dashes).
type Edit struct {
	Op    Op
	Path  string
	Value string
}

// Flag renders the edit to its helper-command argv form.
func (e Edit) Flag() []string {
	switch e.Op {
	case OpSetData:
		return []string{"--set-data", e.Path + "=" + e.Value}
	case OpSetList:
		return []string{"--set-list", e.Path + "=" + e.Value}
	case OpEnableKext:
		return []string{"--enable-kext", e.Value}
	default:
		return []string{"--set", e.Path + "=" + e.Value}
	}
}

// Set builds an OpSet edit.
func Set(path, value string) Edit { return Edit{Op: OpSet, Path: path, Value: value} }

// SetData builds an OpSetData edit from raw bytes.
func SetData(path string, data []byte) Edit {
	return Edit{Op: OpSetData, Path: path, Value: strings.ToUpper(hex.EncodeToString(data))}
}

// SetList builds an OpSetList edit.
func SetList(path string, items ...string) Edit {
	return Edit{Op: OpSetList, Path: path, Value: strings.Join(items, ",")}
}

// EnableKext builds an OpEnableKext edit.
func EnableKext(name string) Edit { return Edit{Op: OpEnableKext, Value: name} }

// ParseFlag is the inverse of Flag, used by the helper command.
func ParseFlag(flag, arg string) (Edit, error) {
	switch flag {
	case "--enable-kext":
		if arg == "" {
			return Edit{}, errors.New("--enable-kext needs a kext name")
		}
		return EnableKext(arg), nil
	case "--set", "--set-data", "--set-list":
		path, value, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return Edit{}, errors.Errorf("%s %q: want <dotted.path>=<value>", flag, arg)
		}
		op := OpSet
		if flag == "--set-data" {
			op = OpSetData
			if _, err := hex.DecodeString(value); err != nil {
				return Edit{}, errors.Wrapf(err, "%s %q: value must be hex", flag, arg)
			}
		} else if flag == "--set-list" {
			op = OpSetList
		}
		return Edit{Op: op, Path: path, Value: value}, nil
	}
	return Edit{}, errors.Errorf("unknown edit flag %q", flag)
}

// Apply runs the edits in order against a decoded plist root.
func Apply(root map[string]interface{}, edits []Edit) error {
	for _, e := range edits {
		if err := applyOne(root, e); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(root map[string]interface{}, e Edit) error {
	if e.Op == OpEnableKext {
		return enableKext(root, e.Value)
	}

	parts := strings.Split(e.Path, ".")
	node := root
	for _, key := range parts[:len(parts)-1] {
		child, ok := node[key]
		if !ok {
			// Missing intermediate dicts are created so NVRAM.Delete
			// can be populated on configs that ship without it.
			next := make(map[string]interface{})
			node[key] = next
			node = next
			continue
		}
		childMap, ok := child.(map[string]interface{})
		if !ok {
			return errors.Errorf("config path %s: %q is not a dict", e.Path, key)
		}
		node = childMap
	}

	leaf := parts[len(parts)-1]
	switch e.Op {
	case OpSetData:
		data, err := hex.DecodeString(e.Value)
		if err != nil {
			return errors.Wrapf(err, "config path %s", e.Path)
		}
		node[leaf] = data
	case OpSetList:
		items := strings.Split(e.Value, ",")
		list := make([]interface{}, len(items))
		for i, item := range items {
			list[i] = item
		}
		node[leaf] = list
	default:
		node[leaf] = typedScalar(e.Value)
	}
	return nil
}

// typedScalar maps the flag text to the plist type OpenCore expects.
func typedScalar(value string) interface{} {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return value
}

func enableKext(root map[string]interface{}, name string) error {
	kernel, _ := root["Kernel"].(map[string]interface{})
	if kernel == nil {
		return errors.Errorf("config has no Kernel dict")
	}
	add, _ := kernel["Add"].([]interface{})
	enabled := 0
	for _, raw := range add {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		bundle, _ := entry["BundlePath"].(string)
		if strings.Contains(bundle, name) {
			entry["Enabled"] = true
			enabled++
		}
	}
	if enabled == 0 {
		return errors.Errorf("no kext matching %q in Kernel.Add", name)
	}
	return nil
}

// PatchFile loads a config.plist (XML or binary), applies the edits and
// writes the result back as XML.
func PatchFile(path string, edits []Edit) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	root := make(map[string]interface{})
	if _, err := plist.Unmarshal(raw, &root); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	if err := Apply(root, edits); err != nil {
		return err
	}

	out, err := plist.MarshalIndent(root, plist.XMLFormat, "\t")
	if err != nil {
		return errors.Wrapf(err, "serializing %s", path)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// String renders an edit for logs.
func (e Edit) String() string {
	return strings.Join(e.Flag(), " ")
}
