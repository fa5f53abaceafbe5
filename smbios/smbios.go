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

// Package smbios generates Mac hardware identities for the guest firmware.
//
// Two modes: random (serial and MLB are plain random strings, enough for an
// offline install) and Apple-services (serial and MLB are derived from
// shared manufacturing data so Apple's activation checks decode a
// consistent origin; required for iMessage/FaceTime/iCloud sign-in).
package smbios

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
)

// Identity is the complete firmware identity handed to the planner.
type Identity struct {
	Serial string
	MLB    string
	UUID   string
	ROM    string
	Model  string
	// MAC is set in Apple-services mode; ROM is derived from it.
	MAC string
}

const serialChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ModelFor returns the default SMBIOS model for a macOS release.
func ModelFor(macos string) string {
	if r, ok := config.ReleaseFor(macos); ok {
		return r.SmbiosModel
	}
	return "iMacPro1,1"
}

// Generate produces a fresh identity for the given release. With
// appleServices set, serial and MLB come from shared manufacturing data and
// a MAC/ROM pair is included.
func Generate(macos string, appleServices bool) Identity {
	if appleServices {
		return generateAppleServices(ModelFor(macos))
	}
	return Identity{
		Serial: randomString(serialChars, 12),
		MLB:    randomString(serialChars, 17),
		UUID:   GenerateUUID(),
		ROM:    randomROM(),
		Model:  ModelFor(macos),
	}
}

// GenerateUUID returns a canonical upper-case UUIDv4.
func GenerateUUID() string {
	return strings.ToUpper(uuid.NewString())
}

// GenerateVMGenID returns a UUID for the qm vmgenid knob.
func GenerateVMGenID() string {
	return GenerateUUID()
}

// GenerateMAC returns a locally administered unicast MAC in the upper-hex
// colon format the validator accepts.
func GenerateMAC() string {
	b := randomBytes(6)
	b[0] = (b[0] | 0x02) &^ 0x01
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = fmt.Sprintf("%02X", octet)
	}
	return strings.Join(parts, ":")
}

// ROMFromMAC derives the 12-hex-char ROM value from a MAC address.
func ROMFromMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(mac, ":", ""))
}

func randomROM() string {
	return strings.ToUpper(fmt.Sprintf("%x", randomBytes(6)))
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the kernel entropy source is
		// broken; nothing sane to do.
		panic(err)
	}
	return b
}

func randomString(alphabet string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[randomInt(len(alphabet))])
	}
	return sb.String()
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}

func randomChoice(options []string) string {
	return options[randomInt(len(options))]
}
