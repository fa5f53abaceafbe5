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

package smbios

import (
	"strings"
	"testing"
)

func TestAppleServicesIdentity(t *testing.T) {
	id := Generate("sequoia", true)

	if len(id.Serial) != 12 {
		t.Fatalf("serial %q has length %d, want 12", id.Serial, len(id.Serial))
	}
	if len(id.MLB) != 17 {
		t.Fatalf("MLB %q has length %d, want 17", id.MLB, len(id.MLB))
	}
	if !VerifyMLBChecksum(id.MLB) {
		t.Fatalf("MLB %q fails the checksum", id.MLB)
	}
	if id.Serial[:3] != id.MLB[:3] {
		t.Fatalf("serial country %q != MLB country %q", id.Serial[:3], id.MLB[:3])
	}
	if !strings.ContainsRune(YearChars, rune(id.Serial[3])) {
		t.Fatalf("serial year char %q not in cycle %q", id.Serial[3], YearChars)
	}
	week := Base34Index(id.Serial[4])
	if week < 1 || week > 26 {
		t.Fatalf("serial week index %d out of 1..26", week)
	}
	if id.ROM != strings.ToUpper(strings.ReplaceAll(id.MAC, ":", "")) {
		t.Fatalf("ROM %q does not derive from MAC %q", id.ROM, id.MAC)
	}

	other := Generate("sequoia", true)
	if other.Serial == id.Serial {
		t.Fatal("two generated serials should differ")
	}
}

func TestAppleServicesIdentityManyDraws(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := Generate("tahoe", true)
		if !VerifyMLBChecksum(id.MLB) {
			t.Fatalf("draw %d: MLB %q fails the checksum", i, id.MLB)
		}
		if len(id.Serial) != 12 || len(id.MLB) != 17 {
			t.Fatalf("draw %d: bad lengths %q / %q", i, id.Serial, id.MLB)
		}
		if id.Model != "MacPro7,1" {
			t.Fatalf("draw %d: model %q", i, id.Model)
		}
		// The serial alphabet excludes I and O everywhere but the
		// country/model pools; generated fields may never contain them.
		if strings.ContainsAny(id.MLB, "IO") {
			t.Fatalf("draw %d: MLB %q contains I or O", i, id.MLB)
		}
	}
}

func TestEncodeWeekCharNeverZero(t *testing.T) {
	for week := 1; week <= 52; week++ {
		c := encodeWeekChar(week)
		idx := Base34Index(c)
		if idx < 1 || idx > 26 {
			t.Fatalf("week %d encodes to index %d, want 1..26", week, idx)
		}
	}
}

func TestEncodeYearCharShift(t *testing.T) {
	firstHalf := encodeYearChar(2018, 10)
	secondHalf := encodeYearChar(2018, 30)
	if firstHalf == secondHalf {
		t.Fatal("second-half weeks must shift the year char")
	}
	if !strings.ContainsRune(YearChars, rune(firstHalf)) ||
		!strings.ContainsRune(YearChars, rune(secondHalf)) {
		t.Fatal("year chars must stay within the cycle")
	}
	// Consistency: the MLB keeps the plain decimal year, so the same
	// draw decodes to the same origin on both sides.
	if encodeYearChar(2018, 10) != encodeYearChar(2018, 26) {
		t.Fatal("weeks within the same half-year must share a year char")
	}
}

func TestEncodeLineRange(t *testing.T) {
	for _, line := range []int{0, 1, 33, 34, 1155, 3399} {
		s := encodeLine(line)
		if len(s) != 3 {
			t.Fatalf("encodeLine(%d) = %q, want 3 chars", line, s)
		}
		// Decode back.
		got := Base34Index(s[0])*34*34 + Base34Index(s[1])*34 + Base34Index(s[2])
		if got != line {
			t.Fatalf("encodeLine(%d) round-trips to %d", line, got)
		}
	}
}

func TestVerifyMLBChecksumRejects(t *testing.T) {
	if VerifyMLBChecksum("SHORT") {
		t.Error("short MLB must fail")
	}
	if VerifyMLBChecksum("IIIIIIIIIIIIIIIII") {
		t.Error("MLB with I (outside base-34) must fail")
	}

	id := Generate("sequoia", true)
	// Corrupt one character; the alternating weights make any single
	// substitution detectable.
	corrupted := []byte(id.MLB)
	if corrupted[5] != 'A' {
		corrupted[5] = 'A'
	} else {
		corrupted[5] = 'B'
	}
	if VerifyMLBChecksum(string(corrupted)) {
		t.Errorf("corrupted MLB %q should fail the checksum", corrupted)
	}
}

func TestGenerateVMGenID(t *testing.T) {
	if !uuidRe.MatchString(GenerateVMGenID()) {
		t.Fatal("vmgenid must be a canonical upper-case UUID")
	}
}
