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

package config

import "sort"

// Channel distinguishes releases served by Apple's stable recovery endpoint
// from ones that need the seed software catalog.
type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelPreview Channel = "preview"
)

// Release describes one supported macOS release.
type Release struct {
	Name  string // map key, e.g. "sequoia"
	Label string // boot-picker label, e.g. "macOS Sequoia 15"
	// DisplayName matches the <title> of the installer distribution in
	// Apple's software catalog, e.g. "macOS Tahoe".
	DisplayName string
	Major       int
	Channel     Channel
	// SmbiosModel is the default Mac identity presented to the guest.
	SmbiosModel string
	// MinDiskGB is the recommended disk floor for a default install.
	MinDiskGB int
}

var supportedReleases = map[string]Release{
	"ventura": {
		Name:        "ventura",
		Label:       "macOS Ventura 13",
		DisplayName: "macOS Ventura",
		Major:       13,
		Channel:     ChannelStable,
		SmbiosModel: "iMacPro1,1",
		MinDiskGB:   80,
	},
	"sonoma": {
		Name:        "sonoma",
		Label:       "macOS Sonoma 14",
		DisplayName: "macOS Sonoma",
		Major:       14,
		Channel:     ChannelStable,
		SmbiosModel: "iMacPro1,1",
		MinDiskGB:   96,
	},
	"sequoia": {
		Name:        "sequoia",
		Label:       "macOS Sequoia 15",
		DisplayName: "macOS Sequoia",
		Major:       15,
		Channel:     ChannelStable,
		SmbiosModel: "iMacPro1,1",
		MinDiskGB:   128,
	},
	"tahoe": {
		Name:        "tahoe",
		Label:       "macOS Tahoe 26",
		DisplayName: "macOS Tahoe",
		Major:       26,
		Channel:     ChannelPreview,
		SmbiosModel: "MacPro7,1",
		MinDiskGB:   160,
	},
}

// ReleaseFor looks up a supported release by name.
func ReleaseFor(name string) (Release, bool) {
	r, ok := supportedReleases[name]
	return r, ok
}

// ReleaseNames returns the supported release names, sorted by major version.
func ReleaseNames() []string {
	names := make([]string, 0, len(supportedReleases))
	for name := range supportedReleases {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return supportedReleases[names[i]].Major < supportedReleases[names[j]].Major
	})
	return names
}

// DefaultDiskGB returns the recommended disk size for a release; unknown
// releases get the conservative floor.
func DefaultDiskGB(name string) int {
	if r, ok := supportedReleases[name]; ok {
		return r.MinDiskGB
	}
	return 80
}
