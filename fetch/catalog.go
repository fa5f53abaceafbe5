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
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/lucid-fabrics/osx-proxmox-next/config"
)

// The merged seed catalog lists preview installers alongside the stable
// ones.
const softwareCatalogURL = "https://swscan.apple.com/content/catalogs/others/" +
	"index-26-15-14-13-12-10.16-10.15-10.14-10.13-10.12-10.11-10.10-10.9" +
	"-mountainlion-lion-snowleopard-leopard.merged-1.sucatalog.gz"

// minInstallerSize filters out delta updates: a full InstallAssistant.pkg
// is well above 5 GB.
const minInstallerSize = int64(5) * 1024 * 1024 * 1024

type softwareCatalog struct {
	Products map[string]catalogProduct `plist:"Products"`
}

type catalogProduct struct {
	Packages      []catalogPackage  `plist:"Packages"`
	Distributions map[string]string `plist:"Distributions"`
	PostDate      time.Time         `plist:"PostDate"`
}

type catalogPackage struct {
	URL  string `plist:"URL"`
	Size int64  `plist:"Size"`
}

type installerCandidate struct {
	productID string
	url       string
	size      int64
	postDate  time.Time
}

var distTitleRe = regexp.MustCompile(`<title>([^<]*)</title>`)

// DownloadFullInstaller fetches the newest full installer for a preview
// release from Apple's software catalog, extracts SharedSupport.dmg from
// the InstallAssistant XAR package and converts it to a raw disk image at
// <destDir>/<macos>-full-installer.img.
func (c *Client) DownloadFullInstaller(macos, destDir string, onProgress ProgressFunc) (string, error) {
	release, ok := config.ReleaseFor(macos)
	if !ok {
		return "", newError(KindProtocol, "", nil, "unknown release %q", macos)
	}

	dest := filepath.Join(destDir, macos+"-full-installer.img")
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
		plog.Infof("full installer already staged: %s", dest)
		return dest, nil
	}

	catalog, err := c.fetchCatalog()
	if err != nil {
		return "", err
	}

	candidate, err := c.chooseInstaller(catalog, release.DisplayName)
	if err != nil {
		return "", err
	}
	plog.Infof("selected installer product %s (%s, %d bytes)",
		candidate.productID, candidate.postDate.Format("2006-01-02"), candidate.size)

	pkgPath := filepath.Join(destDir, macos+"-InstallAssistant.pkg")
	reqFn := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, candidate.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent())
		return req, nil
	}
	if err := c.downloadFile(reqFn, pkgPath, onProgress, PhaseInstaller); err != nil {
		return "", err
	}

	dmgPath := filepath.Join(destDir, macos+"-SharedSupport.dmg")
	if err := extractXarMember(pkgPath, "SharedSupport.dmg", dmgPath); err != nil {
		os.Remove(pkgPath)
		return "", err
	}

	if err := c.convertDMG(dmgPath, dest); err != nil {
		os.Remove(pkgPath)
		os.Remove(dmgPath)
		return "", err
	}

	os.Remove(pkgPath)
	os.Remove(dmgPath)
	return dest, nil
}

func (c *Client) fetchCatalog() (*softwareCatalog, error) {
	req, err := http.NewRequest(http.MethodGet, c.CatalogURL, nil)
	if err != nil {
		return nil, newError(KindProtocol, "", err, "building catalog request")
	}
	req.Header.Set("User-Agent", userAgent())

	body, err := getBody(c.Info, req)
	if err != nil {
		return nil, err
	}

	// The catalog is gzip'd on disk but proxies sometimes inflate it.
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, newError(KindParse, "the catalog payload looks corrupt", err, "gunzipping software catalog")
		}
		defer zr.Close()
		if body, err = io.ReadAll(zr); err != nil {
			return nil, newError(KindParse, "the catalog payload looks corrupt", err, "gunzipping software catalog")
		}
	}

	var catalog softwareCatalog
	if _, err := plist.Unmarshal(body, &catalog); err != nil {
		return nil, newError(KindParse, "Apple may have changed the catalog format", err, "parsing software catalog")
	}
	return &catalog, nil
}

// chooseInstaller picks the newest full installer whose distribution title
// matches the release display name.
func (c *Client) chooseInstaller(catalog *softwareCatalog, displayName string) (*installerCandidate, error) {
	var candidates []installerCandidate

	for productID, product := range catalog.Products {
		pkg, ok := fullInstallerPackage(product)
		if !ok {
			continue
		}
		title, err := c.distributionTitle(product)
		if err != nil {
			plog.Debugf("skipping product %s: %v", productID, err)
			continue
		}
		if !strings.Contains(title, displayName) {
			continue
		}
		candidates = append(candidates, installerCandidate{
			productID: productID,
			url:       pkg.URL,
			size:      pkg.Size,
			postDate:  product.PostDate,
		})
	}

	if len(candidates) == 0 {
		return nil, newError(KindProtocol,
			"the preview may not be in the catalog yet; stage an installer manually",
			nil, "no full installer matching %q in the software catalog", displayName)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].postDate.After(candidates[j].postDate)
	})
	return &candidates[0], nil
}

func fullInstallerPackage(product catalogProduct) (catalogPackage, bool) {
	for _, pkg := range product.Packages {
		if strings.Contains(pkg.URL, "InstallAssistant.pkg") && pkg.Size > minInstallerSize {
			return pkg, true
		}
	}
	return catalogPackage{}, false
}

// distributionTitle fetches the product's English distribution XML and
// extracts its <title>.
func (c *Client) distributionTitle(product catalogProduct) (string, error) {
	distURL := product.Distributions["English"]
	if distURL == "" {
		distURL = product.Distributions["en"]
	}
	if distURL == "" {
		return "", newError(KindProtocol, "", nil, "no English distribution")
	}

	req, err := http.NewRequest(http.MethodGet, distURL, nil)
	if err != nil {
		return "", newError(KindProtocol, "", err, "building distribution request")
	}
	req.Header.Set("User-Agent", userAgent())

	body, err := getBody(c.Info, req)
	if err != nil {
		return "", err
	}
	m := distTitleRe.FindSubmatch(body)
	if m == nil {
		return "", newError(KindParse, "", nil, "distribution has no <title>")
	}
	return string(m[1]), nil
}
