// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package server wires a parsed config.File into live storage drivers and
// transformer chains, and exposes them over the HTTP state-backend
// protocol.
package server

import (
	"context"
	"fmt"

	"github.com/terraflex/terraflex/internal/config"
	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
	"github.com/terraflex/terraflex/internal/transform"
)

// Stack binds one configured stack name to its storage driver, the item
// key identifying its state file, and the ordered transformer chain
// applied to that file's bytes.
type Stack struct {
	Name             string
	StorageDriver    storage.Readable
	StateItemKey     storage.ItemKey
	DataTransformers transform.Chain
}

// BuildStorageProviders constructs every configured storage provider
// instance, keyed by its config name.
func BuildStorageProviders(ctx context.Context, file *config.File, deps registry.Deps) (map[string]storage.Readable, error) {
	providers := make(map[string]storage.Readable, len(file.StorageProviders))
	for name, providerCfg := range file.StorageProviders {
		factory, err := registry.StorageProvider(providerCfg.Type)
		if err != nil {
			return nil, fmt.Errorf("storage provider %s: %w", name, err)
		}

		driver, err := factory(ctx, providerCfg.Extra, deps)
		if err != nil {
			return nil, fmt.Errorf("configuring storage provider %s: %w", name, err)
		}
		providers[name] = driver
	}
	return providers, nil
}

// BuildKeyValidators resolves the key validator registered for each
// configured storage provider's type, keyed by the provider's config name
// (not its type) so transformers can look one up by the name they
// reference in import_from_storage.
func BuildKeyValidators(file *config.File) (map[string]registry.KeyValidator, error) {
	validators := make(map[string]registry.KeyValidator, len(file.StorageProviders))
	for name, providerCfg := range file.StorageProviders {
		validator, err := registry.StorageKeyValidator(providerCfg.Type)
		if err != nil {
			return nil, fmt.Errorf("storage provider %s: %w", name, err)
		}
		validators[name] = validator
	}
	return validators, nil
}

// BuildTransformers constructs every configured transformer instance, keyed
// by its config name.
func BuildTransformers(ctx context.Context, file *config.File, storageProviders map[string]storage.Readable, keyValidators map[string]registry.KeyValidator, deps registry.Deps) (map[string]transform.Transformer, error) {
	transformers := make(map[string]transform.Transformer, len(file.Transformers))
	for name, transformerCfg := range file.Transformers {
		factory, err := registry.Transformer(transformerCfg.Type)
		if err != nil {
			return nil, fmt.Errorf("transformer %s: %w", name, err)
		}

		t, err := factory(ctx, transformerCfg.Extra, storageProviders, keyValidators, deps)
		if err != nil {
			return nil, fmt.Errorf("configuring transformer %s: %w", name, err)
		}
		transformers[name] = t
	}
	return transformers, nil
}

// BuildStacks resolves every configured stack's storage provider and
// transformer chain. The storage provider must be at least Writable: it is
// the backing store for live Terraform/OpenTofu state, and a read-only
// driver there can never satisfy this protocol.
func BuildStacks(file *config.File, storageProviders map[string]storage.Readable, transformers map[string]transform.Transformer) (map[string]*Stack, error) {
	stacks := make(map[string]*Stack, len(file.Stacks))

	for stackName, stackCfg := range file.Stacks {
		driver, ok := storageProviders[stackCfg.StateStorage.Provider]
		if !ok {
			return nil, fmt.Errorf("stack %s: %w", stackName, &terrors.UnknownProviderError{Name: stackCfg.StateStorage.Provider})
		}
		if _, ok := storage.AsWritable(driver); !ok {
			return nil, fmt.Errorf("stack %s: storage provider %q does not support writing, which state management requires", stackName, stackCfg.StateStorage.Provider)
		}

		validator, err := registry.StorageKeyValidator(findProviderType(file, stackCfg.StateStorage.Provider))
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", stackName, err)
		}
		stateKey, err := validator(stackCfg.StateStorage.Params)
		if err != nil {
			return nil, fmt.Errorf("stack %s: invalid state_storage params: %w", stackName, err)
		}

		chain := make(transform.Chain, 0, len(stackCfg.Transformers))
		for _, transformerName := range stackCfg.Transformers {
			t, ok := transformers[transformerName]
			if !ok {
				return nil, fmt.Errorf("stack %s: %w", stackName, &terrors.UnknownTransformerError{Name: transformerName})
			}
			chain = append(chain, t)
		}

		stacks[stackName] = &Stack{
			Name:             stackName,
			StorageDriver:    driver,
			StateItemKey:     stateKey,
			DataTransformers: chain,
		}
	}

	return stacks, nil
}

func findProviderType(file *config.File, providerName string) string {
	return file.StorageProviders[providerName].Type
}
