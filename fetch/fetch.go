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

// Package fetch acquires the two disk images an install needs: the
// OpenCore boot image from the project's GitHub releases, and the macOS
// recovery (or, for the preview release, the full installer) from Apple.
//
// All flows share one atomic download primitive: stream into <dest>.part,
// retry transient failures with exponential backoff, rename into place only
// on full success.
package fetch

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/pkg/capnslog"
	"golang.org/x/sys/unix"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
	"github.com/lucid-fabrics/osx-proxmox-next/util"
)

var plog = capnslog.NewPackageLogger("github.com/lucid-fabrics/osx-proxmox-next", "fetch")

const (
	chunkSize    = 64 * 1024
	maxAttempts  = 3
	backoffStart = 1 * time.Second

	metadataTimeout   = 15 * time.Second
	catalogTimeout    = 30 * time.Second
	fileHeaderTimeout = 60 * time.Second
)

// Download phases reported through the progress callback.
const (
	PhaseOpenCore  = "opencore"
	PhaseRecovery  = "recovery"
	PhaseInstaller = "installer"
)

// Progress is one progress tick. Total is zero when the server did not
// declare a length.
type Progress struct {
	Downloaded int64
	Total      int64
	Phase      string
}

// ProgressFunc may be invoked from whatever goroutine runs the download;
// front-ends marshal to their UI thread themselves.
type ProgressFunc func(Progress)

// Client bundles the HTTP clients, the release source and the tool runner
// the three download flows share. Fields are swappable for tests.
type Client struct {
	// Meta is used for the osrecovery session request (15 s budget).
	// The GitHub release source carries its own client with the same
	// budget.
	Meta *http.Client
	// Info is used for the catalog, the distribution files and the
	// osrecovery image-info request (30 s).
	Info *http.Client
	// File streams large payloads; only the response header is bounded
	// so multi-gigabyte bodies are not cut off mid-flight.
	File *http.Client

	// Runner converts DMGs via dmg2img.
	Runner pve.Runner

	// Releases resolves OpenCore release assets.
	Releases ReleaseSource

	// Endpoint overrides for tests.
	RecoverySessionURL string
	RecoveryImageURL   string
	CatalogURL         string
}

// NewClient returns a production Client running conversions through r.
func NewClient(r pve.Runner) *Client {
	return &Client{
		Meta: &http.Client{Timeout: metadataTimeout},
		Info: &http.Client{Timeout: catalogTimeout},
		File: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: fileHeaderTimeout}).DialContext,
				ResponseHeaderTimeout: fileHeaderTimeout,
				Proxy:                 http.ProxyFromEnvironment,
			},
		},
		Runner:             r,
		Releases:           newGithubReleases(),
		RecoverySessionURL: osRecoveryURL,
		RecoveryImageURL:   osRecoveryImageURL,
		CatalogURL:         softwareCatalogURL,
	}
}

// downloadFile is the atomic primitive. reqFn builds a fresh request per
// attempt (tokens and cookies must not leak between retries of different
// URLs). Transient failures are tried up to maxAttempts times in all,
// waiting 1 s and then 2 s between attempts;
// on any failure the .part file is removed and dest never appears.
func (c *Client) downloadFile(reqFn func() (*http.Request, error), dest string, onProgress ProgressFunc, phase string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return newError(KindNetwork, "check destination directory permissions", err, "creating %s", filepath.Dir(dest))
	}
	part := dest + ".part"

	attempt := func() error {
		req, err := reqFn()
		if err != nil {
			return newError(KindProtocol, "internal request build failure", err, "building request for %s", dest)
		}
		if err := c.downloadOnce(req, part, onProgress, phase); err != nil {
			if rmErr := os.Remove(part); rmErr != nil && !os.IsNotExist(rmErr) {
				plog.Warningf("could not remove partial download %s: %v", part, rmErr)
			}
			return err
		}
		return nil
	}

	if err := util.RetryWithBackoff(maxAttempts, backoffStart, retryable, attempt); err != nil {
		if de, ok := err.(*Error); ok {
			return de
		}
		return newError(KindNetwork, "check network connectivity and retry", err, "download of %s failed after %d attempts", filepath.Base(dest), maxAttempts)
	}
	return os.Rename(part, dest)
}

func (c *Client) downloadOnce(req *http.Request, part string, onProgress ProgressFunc, phase string) error {
	resp, err := c.File.Do(req)
	if err != nil {
		return newError(KindNetwork, "check network connectivity and retry", err, "GET %s", req.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return newError(KindNetwork, "remote server error, will retry", nil, "GET %s: %s", req.URL, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return newError(KindHTTP, "verify the URL is still valid", nil, "GET %s: %s", req.URL, resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	if total > 0 {
		if err := checkFreeSpace(filepath.Dir(part), total); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return newError(KindNetwork, "check destination directory permissions", err, "opening %s", part)
	}
	defer f.Close()

	var downloaded int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return newError(KindNetwork, "check destination free space", writeErr, "writing %s", part)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(Progress{Downloaded: downloaded, Total: total, Phase: phase})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return newError(KindNetwork, "connection dropped, will retry", readErr, "reading %s", req.URL)
		}
	}
	if total > 0 && downloaded != total {
		return newError(KindNetwork, "connection dropped, will retry", nil, "short read: got %d of %d bytes", downloaded, total)
	}
	return f.Sync()
}

// checkFreeSpace refuses to start a download the filesystem cannot hold.
func checkFreeSpace(dir string, need int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		// Can't tell; let the write fail instead.
		return nil
	}
	avail := int64(st.Bavail) * st.Bsize
	if avail < need {
		return newError(KindDiskSpace,
			"free up space on the destination filesystem",
			nil, "%s has %d bytes free, need %d", dir, avail, need)
	}
	return nil
}

// getBody fetches a small payload with the given client.
func getBody(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, "check network connectivity", err, "GET %s", req.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newError(KindHTTP, "verify the endpoint is reachable", nil, "GET %s: %s", req.URL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindNetwork, "check network connectivity", err, "reading %s", req.URL)
	}
	return body, nil
}
