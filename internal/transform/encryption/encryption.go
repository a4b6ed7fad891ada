// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package encryption implements the "encryption" transformer: it encrypts
// content on write and decrypts it on read using a pluggable key provider
// selected by the config's key_type field. Concrete key providers (age)
// register themselves here the same way storage drivers register with
// internal/registry.
package encryption

import (
	"context"
	"fmt"

	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/transform"
)

const typeName = "encryption"

func init() {
	registry.RegisterTransformer(typeName, fromConfig)
}

// ProviderFactory builds the concrete encrypt/decrypt implementation for
// one key_type from the transformer's own (opaque, extra-fields-allowed)
// config section.
type ProviderFactory func(ctx context.Context, raw map[string]any, storageProviders map[string]storage.Readable, keyValidators map[string]registry.KeyValidator, deps registry.Deps) (Provider, error)

// Provider is the minimal encrypt/decrypt contract a key type implements.
type Provider interface {
	Encrypt(ctx context.Context, fileID string, content []byte) ([]byte, error)
	Decrypt(ctx context.Context, fileID string, content []byte) ([]byte, error)
}

var providers = map[string]ProviderFactory{}

// RegisterProvider adds a key provider constructor under keyType. Call from
// an init() function in the provider's own package.
func RegisterProvider(keyType string, factory ProviderFactory) {
	if _, exists := providers[keyType]; exists {
		panic(fmt.Sprintf("encryption: key provider %q already registered", keyType))
	}
	providers[keyType] = factory
}

type config struct {
	KeyType string `yaml:"key_type"`
}

type transformer struct {
	provider Provider
}

var _ transform.Transformer = (*transformer)(nil)

func fromConfig(ctx context.Context, raw map[string]any, storageProviders map[string]storage.Readable, keyValidators map[string]registry.KeyValidator, deps registry.Deps) (transform.Transformer, error) {
	cfg, err := registry.DecodeLoose[config](raw)
	if err != nil {
		return nil, err
	}

	factory, ok := providers[cfg.KeyType]
	if !ok {
		return nil, fmt.Errorf("unsupported encryption key_type: %s", cfg.KeyType)
	}

	provider, err := factory(ctx, raw, storageProviders, keyValidators, deps)
	if err != nil {
		return nil, fmt.Errorf("configuring encryption provider %s: %w", cfg.KeyType, err)
	}

	return &transformer{provider: provider}, nil
}

// EncodeWrite implements transform.Transformer.
func (t *transformer) EncodeWrite(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	return t.provider.Encrypt(ctx, fileID, content)
}

// DecodeRead implements transform.Transformer.
func (t *transformer) DecodeRead(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	return t.provider.Decrypt(ctx, fileID, content)
}
