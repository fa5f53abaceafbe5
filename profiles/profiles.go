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

// Package profiles persists named VM configurations so a working setup
// can be re-applied without retyping every flag.
package profiles

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
)

// Store reads and writes the profiles file. Path defaults to
// ~/.config/osx-proxmox-next/profiles.yaml.
type Store struct {
	Path string
}

func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolving home directory")
	}
	return &Store{Path: filepath.Join(home, ".config", "osx-proxmox-next", "profiles.yaml")}, nil
}

// Load returns all saved profiles; a missing file is an empty set.
func (s *Store) Load() (map[string]config.VmConfig, error) {
	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return map[string]config.VmConfig{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.Path)
	}
	profiles := map[string]config.VmConfig{}
	if err := yaml.Unmarshal(raw, &profiles); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", s.Path)
	}
	return profiles, nil
}

// Save upserts one profile and writes the file back.
func (s *Store) Save(name string, c config.VmConfig) error {
	profiles, err := s.Load()
	if err != nil {
		return err
	}
	profiles[name] = c

	out, err := yaml.Marshal(profiles)
	if err != nil {
		return errors.Wrap(err, "serializing profiles")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(s.Path))
	}
	if err := os.WriteFile(s.Path, out, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", s.Path)
	}
	return nil
}

// Get returns a profile by name.
func (s *Store) Get(name string) (config.VmConfig, bool, error) {
	profiles, err := s.Load()
	if err != nil {
		return config.VmConfig{}, false, err
	}
	c, ok := profiles[name]
	return c, ok, nil
}

// Names lists saved profile names, sorted.
func (s *Store) Names() ([]string, error) {
	profiles, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
