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
	"fmt"
	"strings"
)

// base34Alphabet is Apple's serial alphabet: 0-9 and A-Z without I and O.
const base34Alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// yearChars is the 10-year cycle used for the serial's year position. The
// char is shifted by one for manufacturing weeks in the second half-year.
const yearChars = "CFHKMPRTWY"

// YearChars exposes the serial year alphabet for verification.
const YearChars = yearChars

// manufacturing pools per SMBIOS model. Country, year range and model codes
// must agree between serial and MLB; board/block pools only feed the MLB.
type modelPools struct {
	countries  []string
	yearMin    int
	yearMax    int
	modelCodes []string
	boards     []string
}

var modelManufacturing = map[string]modelPools{
	"iMacPro1,1": {
		countries:  []string{"C02", "C07"},
		yearMin:    2017,
		yearMax:    2019,
		modelCodes: []string{"HX87", "HX8D", "JYVY", "JYW0"},
		boards:     []string{"F8JC", "GHXQ", "DWYW", "KXPG"},
	},
	"MacPro7,1": {
		countries:  []string{"C02", "F5K"},
		yearMin:    2019,
		yearMax:    2022,
		modelCodes: []string{"P7QM", "PLXV", "K7GD", "NYGV"},
		boards:     []string{"P7QM", "KXPG", "F8JC", "GHXQ"},
	},
}

var defaultPools = modelPools{
	countries:  []string{"C02"},
	yearMin:    2017,
	yearMax:    2019,
	modelCodes: []string{"HX87"},
	boards:     []string{"F8JC"},
}

var mlbBlock1 = []string{"200", "600", "403", "405", "501"}
var mlbBlock2 = []string{"4N", "GU", "J9", "QX", "XA"}

// mfgData is the shared origin both the serial and the MLB encode. Using
// one draw for both keeps their decoded country and year bit-exact.
type mfgData struct {
	country   string
	year      int
	week      int // 1..52
	line      int // 0..3399
	modelCode string
	board     string
}

func drawManufacturing(model string) mfgData {
	pools, ok := modelManufacturing[model]
	if !ok {
		pools = defaultPools
	}
	return mfgData{
		country:   randomChoice(pools.countries),
		year:      pools.yearMin + randomInt(pools.yearMax-pools.yearMin+1),
		week:      1 + randomInt(52),
		line:      randomInt(3400),
		modelCode: randomChoice(pools.modelCodes),
		board:     randomChoice(pools.boards),
	}
}

func generateAppleServices(model string) Identity {
	mfg := drawManufacturing(model)
	mac := GenerateMAC()
	return Identity{
		Serial: encodeSerial(mfg),
		MLB:    encodeMLB(mfg),
		UUID:   GenerateUUID(),
		MAC:    mac,
		ROM:    ROMFromMAC(mac),
		Model:  model,
	}
}

// encodeSerial builds the 12-char serial:
// country(3) year(1) week(1) line(3) model(4).
func encodeSerial(mfg mfgData) string {
	var sb strings.Builder
	sb.WriteString(mfg.country)
	sb.WriteByte(encodeYearChar(mfg.year, mfg.week))
	sb.WriteByte(encodeWeekChar(mfg.week))
	sb.WriteString(encodeLine(mfg.line))
	sb.WriteString(mfg.modelCode)
	return sb.String()
}

// encodeYearChar picks from the 10-year cycle, advancing one position for
// second-half-year weeks.
func encodeYearChar(year, week int) byte {
	idx := year % 10
	if week > 26 {
		idx = (idx + 1) % 10
	}
	return yearChars[idx]
}

// encodeWeekChar indexes the week within its half-year into the base-34
// alphabet. The index is always 1..26: never 0, never above 26.
func encodeWeekChar(week int) byte {
	w := week
	if w > 26 {
		w -= 26
	}
	return base34Alphabet[w]
}

// encodeLine renders the production-line number as three base-34 digits.
func encodeLine(line int) string {
	return string([]byte{
		base34Alphabet[(line/(34*34))%34],
		base34Alphabet[(line/34)%34],
		base34Alphabet[line%34],
	})
}

// encodeMLB builds the 17-char board serial:
// country(3) year(1) week(2) block1(3) block2(2) board(4) checksum(2).
// The final two characters are "0" plus the digit that satisfies the
// mod-34 alternating-weight checksum over the whole string.
func encodeMLB(mfg mfgData) string {
	prefix := fmt.Sprintf("%s%d%02d%s%s%s",
		mfg.country,
		mfg.year%10,
		mfg.week,
		mlbBlock1[randomInt(len(mlbBlock1))],
		mlbBlock2[randomInt(len(mlbBlock2))],
		mfg.board,
	)
	return prefix + "0" + string(mlbChecksumChar(prefix))
}

// mlbChecksumChar returns the char making weightedSum(prefix+"0"+char) ≡ 0
// (mod 34). The "0" at position 15 contributes nothing; the final char sits
// at an even position and so carries weight 1.
func mlbChecksumChar(prefix string) byte {
	sum := 0
	for i := 0; i < len(prefix); i++ {
		v := base34Index(prefix[i])
		if v < 0 {
			v = 0
		}
		sum += v * mlbWeight(i)
	}
	return base34Alphabet[((-sum)%34+34)%34]
}

// mlbWeight alternates 3,1 starting with 1 at position 0.
func mlbWeight(pos int) int {
	if pos%2 == 1 {
		return 3
	}
	return 1
}

// VerifyMLBChecksum reports whether a 17-char MLB satisfies the mod-34
// alternating-weight checksum. Characters outside the base-34 alphabet
// (including I and O) make it fail.
func VerifyMLBChecksum(mlb string) bool {
	if len(mlb) != 17 {
		return false
	}
	sum := 0
	for i := 0; i < len(mlb); i++ {
		v := base34Index(mlb[i])
		if v < 0 {
			return false
		}
		sum += v * mlbWeight(i)
	}
	return sum%34 == 0
}

// Base34Index returns the position of c in the serial alphabet, -1 when c
// is not part of it.
func Base34Index(c byte) int {
	return base34Index(c)
}

func base34Index(c byte) int {
	return strings.IndexByte(base34Alphabet, c)
}
