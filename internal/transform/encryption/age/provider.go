// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package age

import (
	"context"
	"fmt"

	"github.com/terraflex/terraflex/internal/config"
	"github.com/terraflex/terraflex/internal/depresolver"
	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
	"github.com/terraflex/terraflex/internal/transform/encryption"
)

const keyType = "age"

// dependencyVersion pins the age release this build's downloader knows how
// to fetch and extract.
const dependencyVersion = "1.2.0"

func init() {
	encryption.RegisterProvider(keyType, fromConfig)
}

type keyConfig struct {
	ImportFromStorage config.StorageProviderUsageConfig `yaml:"import_from_storage"`
}

type provider struct {
	controller *controller
}

var _ encryption.Provider = (*provider)(nil)

func fromConfig(ctx context.Context, raw map[string]any, storageProviders map[string]storage.Readable, keyValidators map[string]registry.KeyValidator, deps registry.Deps) (encryption.Provider, error) {
	cfg, err := registry.DecodeLoose[keyConfig](raw)
	if err != nil {
		return nil, err
	}

	storageProvider, ok := storageProviders[cfg.ImportFromStorage.Provider]
	if !ok {
		return nil, &terrors.UnknownProviderError{Name: cfg.ImportFromStorage.Provider}
	}
	validateKey, ok := keyValidators[cfg.ImportFromStorage.Provider]
	if !ok || validateKey == nil {
		return nil, fmt.Errorf("storage provider %s has no key validator", cfg.ImportFromStorage.Provider)
	}

	storageKey, err := validateKey(cfg.ImportFromStorage.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid key params for provider %s: %w", cfg.ImportFromStorage.Provider, err)
	}

	privateKey, err := storageProvider.Get(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("reading private key from %s: %w", cfg.ImportFromStorage.Provider, err)
	}

	ageKeygenPath, err := deps.Resolver.Require("age-keygen")
	if err != nil {
		return nil, err
	}
	agePath, err := deps.Resolver.Require("age")
	if err != nil {
		return nil, err
	}

	keygen := newKeygenController(ageKeygenPath)
	publicKey, err := keygen.PublicKeyFromBytes(ctx, privateKey)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}

	return &provider{controller: newController(agePath, privateKey, publicKey)}, nil
}

// Encrypt implements encryption.Provider.
func (p *provider) Encrypt(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	return p.controller.Encrypt(ctx, fileID, content)
}

// Decrypt implements encryption.Provider.
func (p *provider) Decrypt(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	return p.controller.Decrypt(ctx, fileID, content)
}

func init() {
	registry.RegisterDependency(depresolver.Dependency{
		Names:      []string{"age", "age-keygen"},
		Version:    dependencyVersion,
		Downloader: downloader{},
	})
}
