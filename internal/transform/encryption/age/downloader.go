// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package age

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-retryablehttp"
)

const releaseURLTemplate = "https://github.com/FiloSottile/age/releases/download/v%s/age-v%s-%s.tar.gz"

// downloader fetches the age/age-keygen release tarball matching the
// running platform and installs both binaries at their expected cache
// paths, reading the archive with the standard library's archive/tar and
// compress/gzip.
type downloader struct{}

func (d downloader) Download(ctx context.Context, client *retryablehttp.Client, version string, expectedPaths map[string]string) error {
	url := fmt.Sprintf(releaseURLTemplate, version, version, platformName())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("downloading %s: unexpected status %s: %s", url, resp.Status, body)
	}

	tmpDir, err := os.MkdirTemp("", "terraflex-age-*")
	if err != nil {
		return fmt.Errorf("creating temporary extraction directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractTarGz(resp.Body, tmpDir); err != nil {
		return fmt.Errorf("extracting %s: %w", url, err)
	}

	for _, name := range []string{"age", "age-keygen"} {
		dest, ok := expectedPaths[name]
		if !ok {
			return fmt.Errorf("expected %s to be in the expected paths", name)
		}
		if err := moveExecutable(filepath.Join(tmpDir, "age", name), dest); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}

func extractTarGz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target := filepath.Join(destDir, filepath.Clean(header.Name))
		if !isWithinDir(destDir, target) {
			return fmt.Errorf("tar entry %q escapes extraction directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

func isWithinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasPrefix(rel, "../")
}

func filepathHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func moveExecutable(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading extracted binary %s: %w", src, err)
	}
	if err := os.WriteFile(dest, data, 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

func platformName() string {
	arch := "arm64"
	if runtime.GOARCH == "amd64" {
		arch = "amd64"
	}
	return fmt.Sprintf("%s-%s", runtime.GOOS, arch)
}
