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
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v74/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-fabrics/osx-proxmox-next/pve"
)

// cannedReleases is the test ReleaseSource.
type cannedReleases struct {
	byTag  map[string]*github.RepositoryRelease
	latest *github.RepositoryRelease

	tagCalls    []string
	latestCalls int
}

func (c *cannedReleases) ReleaseByTag(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	c.tagCalls = append(c.tagCalls, tag)
	if rel, ok := c.byTag[tag]; ok {
		return rel, nil
	}
	return nil, errors.New("404 not found")
}

func (c *cannedReleases) LatestRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	c.latestCalls++
	if c.latest == nil {
		return nil, errors.New("404 not found")
	}
	return c.latest, nil
}

func release(tag string, assets map[string]string) *github.RepositoryRelease {
	rel := &github.RepositoryRelease{TagName: github.Ptr(tag)}
	for name, url := range assets {
		rel.Assets = append(rel.Assets, &github.ReleaseAsset{
			Name:               github.Ptr(name),
			BrowserDownloadURL: github.Ptr(url),
		})
	}
	return rel
}

func TestDownloadOpenCorePerReleaseAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("opencore-esp-image"))
	}))
	defer srv.Close()

	releases := &cannedReleases{
		latest: release("v0.7.0", map[string]string{
			"opencore-sequoia.iso":        srv.URL + "/opencore-sequoia.iso",
			"opencore-osx-proxmox-vm.iso": srv.URL + "/universal.iso",
		}),
	}
	c := testClient(srv, pve.NewRecordingRunner())
	c.Releases = releases

	dir := t.TempDir()
	dest, err := c.DownloadOpenCore(context.Background(), "sequoia", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "opencore-sequoia.iso"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "opencore-esp-image", string(data))

	// The exact build tag is tried before falling back to latest.
	require.NotEmpty(t, releases.tagCalls)
	assert.Regexp(t, `^v\d+\.\d+`, releases.tagCalls[0])
	assert.Equal(t, 1, releases.latestCalls)
}

func TestDownloadOpenCoreFallsBackToUniversal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("universal-image"))
	}))
	defer srv.Close()

	c := testClient(srv, pve.NewRecordingRunner())
	c.Releases = &cannedReleases{
		latest: release("v0.6.0", map[string]string{
			"opencore-osx-proxmox-vm.iso": srv.URL + "/universal.iso",
		}),
	}

	dir := t.TempDir()
	dest, err := c.DownloadOpenCore(context.Background(), "ventura", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "opencore-osx-proxmox-vm.iso"), dest)
}

func TestDownloadOpenCoreReusesStagedImage(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "opencore-osx-proxmox-vm.iso")
	require.NoError(t, os.WriteFile(staged, []byte("already here"), 0644))

	// No release source and no server: nothing may be fetched.
	c := NewClient(pve.NewRecordingRunner())
	c.Releases = &cannedReleases{}

	dest, err := c.DownloadOpenCore(context.Background(), "sequoia", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, staged, dest)
}

func TestDownloadOpenCoreNoAssets(t *testing.T) {
	c := NewClient(pve.NewRecordingRunner())
	c.Releases = &cannedReleases{
		latest: release("v0.7.0", map[string]string{"README.md": "http://example.invalid/readme"}),
	}

	_, err := c.DownloadOpenCore(context.Background(), "sequoia", t.TempDir(), nil)
	require.Error(t, err)
	de, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, de.Kind)
	assert.Contains(t, err.Error(), "opencore-sequoia.iso")
}

func TestDownloadOpenCoreNoReleases(t *testing.T) {
	c := NewClient(pve.NewRecordingRunner())
	c.Releases = &cannedReleases{}

	_, err := c.DownloadOpenCore(context.Background(), "sequoia", t.TempDir(), nil)
	require.Error(t, err)
	de, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, de.Kind)
}
