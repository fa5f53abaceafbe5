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
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/lucid-fabrics/osx-proxmox-next/version"
)

const (
	releaseOwner = "lucid-fabrics"
	releaseRepo  = "osx-proxmox-next"
)

// OpenCoreUniversalImage mirrors assets.OpenCoreUniversalImage; the
// downloader must not depend on the resolver package.
const OpenCoreUniversalImage = "opencore-osx-proxmox-vm.iso"

// ReleaseSource resolves OpenCore release metadata. The production source
// is the GitHub releases API; tests substitute a canned one.
type ReleaseSource interface {
	ReleaseByTag(ctx context.Context, tag string) (*github.RepositoryRelease, error)
	LatestRelease(ctx context.Context) (*github.RepositoryRelease, error)
}

type githubReleases struct {
	client *github.Client
}

func newGithubReleases() ReleaseSource {
	return &githubReleases{client: github.NewClient(&http.Client{Timeout: metadataTimeout})}
}

func (g *githubReleases) ReleaseByTag(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	rel, _, err := g.client.Repositories.GetReleaseByTag(ctx, releaseOwner, releaseRepo, tag)
	return rel, err
}

func (g *githubReleases) LatestRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	rel, _, err := g.client.Repositories.GetLatestRelease(ctx, releaseOwner, releaseRepo)
	return rel, err
}

// DownloadOpenCore stages the OpenCore boot image for a release into
// destDir and returns its path. Already-staged images are reused. The
// release matching this build's tag is tried first, then the latest
// release; within a release the per-release asset wins over the universal
// image.
func (c *Client) DownloadOpenCore(ctx context.Context, macos, destDir string, onProgress ProgressFunc) (string, error) {
	candidates := []string{
		fmt.Sprintf("opencore-%s.iso", macos),
		OpenCoreUniversalImage,
	}
	for _, name := range candidates {
		dest := filepath.Join(destDir, name)
		if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
			plog.Infof("OpenCore image already staged: %s", dest)
			return dest, nil
		}
	}

	release, err := c.resolveRelease(ctx)
	if err != nil {
		return "", err
	}

	for _, name := range candidates {
		url := assetURL(release, name)
		if url == "" {
			continue
		}
		dest := filepath.Join(destDir, name)
		reqFn := func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", userAgent())
			return req, nil
		}
		if err := c.downloadFile(reqFn, dest, onProgress, PhaseOpenCore); err != nil {
			return "", err
		}
		return dest, nil
	}

	return "", newError(KindProtocol,
		"the release assets may have been renamed; download the image manually",
		nil, "no OpenCore asset found in release %q (tried: %s)",
		release.GetTagName(), strings.Join(candidates, ", "))
}

func (c *Client) resolveRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	tag := "v" + version.Version
	release, tagErr := c.Releases.ReleaseByTag(ctx, tag)
	if tagErr == nil && release != nil {
		return release, nil
	}

	release, latestErr := c.Releases.LatestRelease(ctx)
	if latestErr == nil && release != nil {
		return release, nil
	}
	return nil, newError(KindProtocol,
		"check https://github.com/"+releaseOwner+"/"+releaseRepo+"/releases",
		latestErr, "could not fetch release metadata (tried %s and latest)", tag)
}

func assetURL(release *github.RepositoryRelease, name string) string {
	for _, asset := range release.Assets {
		if asset.GetName() == name {
			return asset.GetBrowserDownloadURL()
		}
	}
	return ""
}

func userAgent() string {
	return "osx-proxmox-next/" + version.Version
}
