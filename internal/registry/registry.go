// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package registry is the plugin composition layer: a compile-time static
// map from a config "type" name to the constructor that builds the
// corresponding storage driver or transformer. Concrete drivers register
// themselves from an init() function in their own package, the same
// discovery-free pattern database/sql uses for its drivers.
package registry

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/terraflex/terraflex/internal/depresolver"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
	"github.com/terraflex/terraflex/internal/transform"
)

// Deps bundles the values every factory needs besides its own opaque
// config: the dependency resolver (for binaries such as age/age-keygen) and
// the data directory a driver may use to keep local state.
type Deps struct {
	Resolver *depresolver.Manager
	Workdir  string
}

// StorageProviderFactory builds a storage driver from its opaque config
// section. The returned value's capability is discovered by the caller via
// a type assertion against storage.Writable / storage.Lockable.
type StorageProviderFactory func(ctx context.Context, raw map[string]any, deps Deps) (storage.Readable, error)

// KeyValidator builds a driver-specific storage.ItemKey from an opaque
// params map. Every storage provider package registers one alongside its
// factory.
type KeyValidator func(raw map[string]any) (storage.ItemKey, error)

// TransformerFactory builds a transformer from its opaque config section.
// It additionally receives the fully constructed storage providers and
// their key validators, since transformers such as encryption resolve key
// material by reaching into another configured storage provider.
type TransformerFactory func(ctx context.Context, raw map[string]any, storageProviders map[string]storage.Readable, keyValidators map[string]KeyValidator, deps Deps) (transform.Transformer, error)

type storageProviderEntry struct {
	factory      StorageProviderFactory
	keyValidator KeyValidator
}

var (
	storageProviders = map[string]storageProviderEntry{}
	transformers     = map[string]TransformerFactory{}
	dependencies     []depresolver.Dependency
	dependencyNames  = map[string]bool{}
)

// RegisterStorageProvider adds a storage driver constructor and its key
// validator under typeName. Call from an init() function in the driver's
// package.
func RegisterStorageProvider(typeName string, factory StorageProviderFactory, keyValidator KeyValidator) {
	if _, exists := storageProviders[typeName]; exists {
		panic(fmt.Sprintf("registry: storage provider %q already registered", typeName))
	}
	storageProviders[typeName] = storageProviderEntry{factory: factory, keyValidator: keyValidator}
}

// RegisterTransformer adds a transformer constructor under typeName.
func RegisterTransformer(typeName string, factory TransformerFactory) {
	if _, exists := transformers[typeName]; exists {
		panic(fmt.Sprintf("registry: transformer %q already registered", typeName))
	}
	transformers[typeName] = factory
}

// RegisterDependency declares a binary dependency (e.g. age/age-keygen)
// needed by some transformer or storage provider. Registering the same
// logical name twice is a no-op so that a transformer used by several
// stacks doesn't queue duplicate downloads.
func RegisterDependency(dep depresolver.Dependency) {
	for _, name := range dep.Names {
		if dependencyNames[name] {
			return
		}
	}
	for _, name := range dep.Names {
		dependencyNames[name] = true
	}
	dependencies = append(dependencies, dep)
}

// StorageProvider looks up a registered storage driver constructor.
func StorageProvider(typeName string) (StorageProviderFactory, error) {
	e, ok := storageProviders[typeName]
	if !ok {
		return nil, &terrors.UnknownTypeError{Group: "storage provider", Type: typeName}
	}
	return e.factory, nil
}

// StorageKeyValidator looks up the key validator registered alongside a
// storage driver constructor.
func StorageKeyValidator(typeName string) (KeyValidator, error) {
	e, ok := storageProviders[typeName]
	if !ok {
		return nil, &terrors.UnknownTypeError{Group: "storage provider", Type: typeName}
	}
	return e.keyValidator, nil
}

// Transformer looks up a registered transformer constructor.
func Transformer(typeName string) (TransformerFactory, error) {
	f, ok := transformers[typeName]
	if !ok {
		return nil, &terrors.UnknownTypeError{Group: "transformer", Type: typeName}
	}
	return f, nil
}

// Dependencies returns every dependency registered so far, suitable for
// building a depresolver.Manager at startup.
func Dependencies() []depresolver.Dependency {
	return append([]depresolver.Dependency(nil), dependencies...)
}

// Decode converts an opaque config map (as produced by YAML unmarshaling)
// into a typed constructor argument. Unknown keys are rejected so a typo in
// a config file fails fast instead of being silently ignored.
func Decode[T any](raw map[string]any) (T, error) {
	return decode[T](raw, true)
}

// DecodeLoose is Decode without the unused-key check, for config structs
// that only read a handful of fields out of a larger opaque map shared with
// another consumer (e.g. a transformer's own config block also carries the
// key provider's fields).
func DecodeLoose[T any](raw map[string]any) (T, error) {
	return decode[T](raw, false)
}

func decode[T any](raw map[string]any, errorUnused bool) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		ErrorUnused:      errorUnused,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return out, fmt.Errorf("building config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("invalid configuration: %w", err)
	}
	return out, nil
}
