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

package fetch

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Apple's internet-recovery endpoint. Plain http by design; payloads are
// chunklist-signed.
const (
	osRecoveryURL      = "http://osrecovery.apple.com/"
	osRecoveryImageURL = "http://osrecovery.apple.com/InstallationPayload/RecoveryImage"

	recoveryUserAgent = "InternetRecovery/1.0"

	// The board serial is irrelevant for recovery; the protocol accepts
	// all zeros.
	mlbZero = "00000000000000000"
)

// recoveryBoardIDs maps a release to the Mac board ID whose recovery image
// ships that release.
var recoveryBoardIDs = map[string]string{
	"ventura": "Mac-7BA5B2D9E42DDD94",
	"sonoma":  "Mac-827FAC58A8FDFA22",
	"sequoia": "Mac-27AD2F918AE68F61",
	// The Sequoia board with os=latest returns the Tahoe preview payload.
	"tahoe": "Mac-27AD2F918AE68F61",
}

var recoveryOSType = map[string]string{
	"tahoe": "latest",
}

// DownloadRecovery fetches the BaseSystem recovery image for a release via
// Apple's two-step osrecovery protocol, converts it to a raw disk image and
// returns the image path (<destDir>/<macos>-recovery.img).
func (c *Client) DownloadRecovery(macos, destDir string, onProgress ProgressFunc) (string, error) {
	boardID, ok := recoveryBoardIDs[macos]
	if !ok {
		return "", newError(KindProtocol, "use --installer-path with a pre-staged image", nil, "no recovery board ID for %q", macos)
	}

	dest := filepath.Join(destDir, macos+"-recovery.img")
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
		plog.Infof("recovery image already staged: %s", dest)
		return dest, nil
	}

	osType := recoveryOSType[macos]
	if osType == "" {
		osType = "default"
	}

	session, err := c.recoverySession()
	if err != nil {
		return "", err
	}
	info, err := c.recoveryImageInfo(session, boardID, osType)
	if err != nil {
		return "", err
	}

	dmgPath := filepath.Join(destDir, macos+"-BaseSystem.dmg")
	chunklistPath := filepath.Join(destDir, macos+"-BaseSystem.chunklist")

	if err := c.downloadWithToken(info["AU"], info["AT"], dmgPath, onProgress, PhaseRecovery); err != nil {
		return "", err
	}
	if err := c.downloadWithToken(info["CU"], info["CT"], chunklistPath, nil, PhaseRecovery); err != nil {
		return "", err
	}

	if err := c.convertDMG(dmgPath, dest); err != nil {
		return "", err
	}

	// Best-effort cleanup of intermediates.
	os.Remove(dmgPath)
	os.Remove(chunklistPath)

	return dest, nil
}

// recoverySession performs the first protocol step: obtain the session
// cookie.
func (c *Client) recoverySession() (string, error) {
	req, err := http.NewRequest(http.MethodGet, c.RecoverySessionURL, nil)
	if err != nil {
		return "", newError(KindProtocol, "", err, "building session request")
	}
	req.Host = "osrecovery.apple.com"
	req.Header.Set("User-Agent", recoveryUserAgent)
	req.Header.Set("Connection", "close")

	resp, err := c.Meta.Do(req)
	if err != nil {
		return "", newError(KindNetwork, "check network connectivity to osrecovery.apple.com", err, "fetching recovery session")
	}
	defer resp.Body.Close()

	for _, cookie := range resp.Header.Values("Set-Cookie") {
		for _, part := range strings.Split(cookie, "; ") {
			if strings.HasPrefix(part, "session=") {
				return part, nil
			}
		}
	}
	return "", newError(KindProtocol,
		"Apple may have changed the recovery protocol",
		nil, "no session cookie in Apple recovery response")
}

// recoveryImageInfo performs the second protocol step: exchange the session
// for asset and chunklist URLs plus their access tokens.
func (c *Client) recoveryImageInfo(session, boardID, osType string) (map[string]string, error) {
	fields := []string{
		"cid=" + randomHex(16),
		"sn=" + mlbZero,
		"bid=" + boardID,
		"k=" + randomHex(64),
		"fg=" + randomHex(64),
		"os=" + osType,
	}
	body := strings.Join(fields, "\n")

	req, err := http.NewRequest(http.MethodPost, c.RecoveryImageURL, strings.NewReader(body))
	if err != nil {
		return nil, newError(KindProtocol, "", err, "building image-info request")
	}
	req.Host = "osrecovery.apple.com"
	req.Header.Set("User-Agent", recoveryUserAgent)
	req.Header.Set("Connection", "close")
	req.Header.Set("Cookie", session)
	req.Header.Set("Content-Type", "text/plain")

	payload, err := getBody(c.Info, req)
	if err != nil {
		return nil, err
	}

	info := make(map[string]string)
	for _, line := range strings.Split(string(payload), "\n") {
		if key, value, ok := strings.Cut(line, ": "); ok {
			info[key] = value
		}
	}
	for _, required := range []string{"AU", "AT", "CU", "CT"} {
		if _, ok := info[required]; !ok {
			return nil, newError(KindMissingKey,
				"Apple may have changed the recovery protocol",
				nil, "missing key %q in Apple recovery response", required)
		}
	}
	return info, nil
}

// downloadWithToken streams an osrecovery asset authorized by its token.
func (c *Client) downloadWithToken(assetURL, token, dest string, onProgress ProgressFunc, phase string) error {
	reqFn := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, assetURL, nil)
		if err != nil {
			return nil, err
		}
		if parsed, err := url.Parse(assetURL); err == nil && parsed.Hostname() != "" {
			req.Host = parsed.Hostname()
		}
		req.Header.Set("User-Agent", recoveryUserAgent)
		req.Header.Set("Connection", "close")
		req.Header.Set("Cookie", "AssetToken="+token)
		return req, nil
	}
	return c.downloadFile(reqFn, dest, onProgress, phase)
}

// convertDMG turns an Apple DMG into a raw disk image with dmg2img.
func (c *Client) convertDMG(dmgPath, dest string) error {
	res := c.Runner.Run([]string{"dmg2img", dmgPath, dest})
	if !res.Ok {
		os.Remove(dest)
		return newError(KindConversion,
			"install the converter with: apt install dmg2img",
			nil, "dmg2img failed (rc=%d): %s", res.ReturnCode, res.Output)
	}
	return nil
}

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return strings.ToUpper(fmt.Sprintf("%x", b))[:n]
}
