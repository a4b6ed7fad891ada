// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package depresolver maintains a content-addressable cache of helper
// binaries (the age/age-keygen executables the encryption transformer
// shells out to) under the user's XDG data directory, downloading them on
// first use.
package depresolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/terraflex/terraflex/internal/logging"
	"github.com/terraflex/terraflex/internal/terrors"
)

// Downloader produces the files named in expectedPaths, with execute bits
// set, for the requested version. Implementations are registered per
// dependency and invoked only when at least one expected file is absent.
// The supplied client is the Manager's own retrying HTTP client, so every
// downloader shares one retry/backoff and User-Agent policy.
type Downloader interface {
	Download(ctx context.Context, client *retryablehttp.Client, version string, expectedPaths map[string]string) error
}

// Dependency names one or more related binaries (e.g. "age" and
// "age-keygen") that are always downloaded together by a single Downloader.
type Dependency struct {
	Names      []string
	Version    string
	Downloader Downloader
}

// Manager resolves Dependency entries to local file paths, downloading
// anything missing on Initialize and serving Require from the resolved
// cache for the remainder of the process lifetime.
type Manager struct {
	dependencies []Dependency
	destFolder   string
	client       *retryablehttp.Client
	log          hclog.Logger

	mu          sync.Mutex
	resolved    map[string]string
	initialized bool
}

// NewManager constructs a Manager that caches binaries under destFolder
// (normally <XDG_DATA_HOME>/terraflex).
func NewManager(dependencies []Dependency, destFolder string) *Manager {
	rClient := retryablehttp.NewClient()
	rClient.HTTPClient = newHTTPClient()
	log := logging.New("depresolver")
	rClient.Logger = log.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})

	return &Manager{
		dependencies: dependencies,
		destFolder:   destFolder,
		client:       rClient,
		log:          log,
		resolved:     make(map[string]string),
	}
}

// HTTPClient exposes the retrying HTTP client downloaders should use to
// fetch release archives, so every downloader follows the same
// retry/backoff policy and fails fast on a non-2xx response.
func (m *Manager) HTTPClient() *retryablehttp.Client {
	return m.client
}

// Initialize ensures every declared dependency's expected files exist under
// destFolder, invoking each Downloader at most once for whatever is
// missing.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.destFolder, 0o755); err != nil {
		return fmt.Errorf("creating dependency cache directory: %w", err)
	}

	for _, dep := range m.dependencies {
		expected := make(map[string]string, len(dep.Names))
		missing := false
		for _, name := range dep.Names {
			path := filepath.Join(m.destFolder, fmt.Sprintf("%s-v%s", name, dep.Version))
			expected[name] = path
			if _, err := os.Stat(path); err != nil {
				missing = true
			}
		}

		if missing {
			m.log.Info("downloading dependency", "names", dep.Names, "version", dep.Version)
			if err := dep.Downloader.Download(ctx, m.client, dep.Version, expected); err != nil {
				return fmt.Errorf("downloading %v v%s: %w", dep.Names, dep.Version, err)
			}
		}

		for name, path := range expected {
			if err := os.Chmod(path, 0o755); err != nil {
				return fmt.Errorf("setting execute bit on %s: %w", path, err)
			}
			m.resolved[name] = path
		}
	}

	m.initialized = true
	return nil
}

// Require returns the resolved path of name, failing with
// *terrors.DependencyMissingError if it was never declared or resolved.
func (m *Manager) Require(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return "", &terrors.DependencyMissingError{Name: name}
	}

	path, ok := m.resolved[name]
	if !ok {
		return "", &terrors.DependencyMissingError{Name: name}
	}
	return path, nil
}
