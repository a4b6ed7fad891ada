// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/apparentlymart/go-userdirs/userdirs"

	"github.com/terraflex/terraflex/internal/config"
	"github.com/terraflex/terraflex/internal/depresolver"
	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/server"

	// Side-effecting imports: each of these registers its storage
	// provider / transformer / dependency with internal/registry from an
	// init() function. Nothing in this file references them directly.
	_ "github.com/terraflex/terraflex/internal/storage/envvar"
	_ "github.com/terraflex/terraflex/internal/storage/git"
	_ "github.com/terraflex/terraflex/internal/storage/local"
	_ "github.com/terraflex/terraflex/internal/transform/encryption"
	_ "github.com/terraflex/terraflex/internal/transform/encryption/age"
)

const configFileName = "terraflex.yaml"

// stateDir returns the per-user, per-application data directory backing
// the dependency resolver's binary cache, using the platform's standard
// XDG-style application data layout.
func stateDir() (string, error) {
	if override := os.Getenv("TERRAFLEX_STATE_DIR"); override != "" {
		return override, nil
	}

	dirs := userdirs.ForApp("Terraflex", "Terraflex", "io.terraflex")
	paths := dirs.DataSearchPaths("")
	if len(paths) == 0 {
		return "", fmt.Errorf("could not determine a data directory for this platform")
	}
	return paths[0], nil
}

// buildController loads ./terraflex.yaml, resolves dependency binaries, and
// wires every configured storage provider, transformer and stack into a
// ready-to-serve server.Controller.
func buildController(ctx context.Context) (*server.Controller, error) {
	file, err := config.Load(configFileName)
	if err != nil {
		return nil, err
	}

	dataDir, err := stateDir()
	if err != nil {
		return nil, err
	}

	resolver := depresolver.NewManager(registry.Dependencies(), dataDir)
	if err := resolver.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}

	deps := registry.Deps{Resolver: resolver, Workdir: dataDir}

	storageProviders, err := server.BuildStorageProviders(ctx, file, deps)
	if err != nil {
		return nil, err
	}
	keyValidators, err := server.BuildKeyValidators(file)
	if err != nil {
		return nil, err
	}
	transformers, err := server.BuildTransformers(ctx, file, storageProviders, keyValidators, deps)
	if err != nil {
		return nil, err
	}
	stacks, err := server.BuildStacks(file, storageProviders, transformers)
	if err != nil {
		return nil, err
	}

	return server.NewController(stacks), nil
}
