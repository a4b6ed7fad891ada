// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/terraflex/terraflex/internal/depresolver"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
	"github.com/terraflex/terraflex/internal/transform"
)

type decodeTarget struct {
	Folder string `yaml:"folder"`
	Mode   int    `yaml:"mode"`
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode[decodeTarget](map[string]any{"folder": "x", "typo_field": true})
	if err == nil {
		t.Fatalf("expected Decode to reject an unused key")
	}
}

func TestDecodeWeaklyTypesInput(t *testing.T) {
	got, err := Decode[decodeTarget](map[string]any{"folder": "x", "mode": "420"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Mode != 420 {
		t.Fatalf("expected weakly-typed string to decode to int, got %d", got.Mode)
	}
}

func TestDecodeLooseAllowsUnknownKeys(t *testing.T) {
	got, err := DecodeLoose[decodeTarget](map[string]any{"folder": "x", "import_from_storage": map[string]any{"provider": "p"}})
	if err != nil {
		t.Fatalf("DecodeLoose: %v", err)
	}
	if got.Folder != "x" {
		t.Fatalf("unexpected folder: %s", got.Folder)
	}
}

type stubItemKey struct{ id string }

func (k stubItemKey) AsString() string { return k.id }

type stubDriver struct{}

func (stubDriver) Get(context.Context, storage.ItemKey) ([]byte, error) { return nil, nil }

func TestRegisterAndLookupStorageProvider(t *testing.T) {
	const typeName = "registry-test-storage"

	factory := func(context.Context, map[string]any, Deps) (storage.Readable, error) {
		return stubDriver{}, nil
	}
	validator := func(raw map[string]any) (storage.ItemKey, error) {
		return stubItemKey{id: raw["id"].(string)}, nil
	}
	RegisterStorageProvider(typeName, factory, validator)

	gotFactory, err := StorageProvider(typeName)
	if err != nil {
		t.Fatalf("StorageProvider: %v", err)
	}
	driver, err := gotFactory(context.Background(), nil, Deps{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := driver.(stubDriver); !ok {
		t.Fatalf("expected stubDriver, got %T", driver)
	}

	gotValidator, err := StorageKeyValidator(typeName)
	if err != nil {
		t.Fatalf("StorageKeyValidator: %v", err)
	}
	key, err := gotValidator(map[string]any{"id": "abc"})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	if key.AsString() != "abc" {
		t.Fatalf("unexpected key: %v", key)
	}
}

func TestStorageProviderUnknownType(t *testing.T) {
	if _, err := StorageProvider("registry-test-does-not-exist"); !errors.As(err, new(*terrors.UnknownTypeError)) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
}

func TestRegisterStorageProviderPanicsOnDuplicate(t *testing.T) {
	const typeName = "registry-test-duplicate"
	RegisterStorageProvider(typeName, func(context.Context, map[string]any, Deps) (storage.Readable, error) {
		return stubDriver{}, nil
	}, nil)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	RegisterStorageProvider(typeName, func(context.Context, map[string]any, Deps) (storage.Readable, error) {
		return stubDriver{}, nil
	}, nil)
}

func TestRegisterTransformer(t *testing.T) {
	const typeName = "registry-test-transformer"

	called := false
	RegisterTransformer(typeName, func(context.Context, map[string]any, map[string]storage.Readable, map[string]KeyValidator, Deps) (transform.Transformer, error) {
		called = true
		return nil, nil
	})

	factory, err := Transformer(typeName)
	if err != nil {
		t.Fatalf("Transformer: %v", err)
	}
	if _, err := factory(context.Background(), nil, nil, nil, Deps{}); err != nil {
		t.Fatalf("factory: %v", err)
	}
	if !called {
		t.Fatalf("expected factory to be invoked")
	}
}

func TestRegisterDependencyDeduplicatesByName(t *testing.T) {
	before := len(Dependencies())

	RegisterDependency(depresolver.Dependency{Names: []string{"registry-test-bin"}, Version: "1.0"})
	RegisterDependency(depresolver.Dependency{Names: []string{"registry-test-bin"}, Version: "2.0"})

	after := Dependencies()
	if len(after) != before+1 {
		t.Fatalf("expected exactly one new dependency to be registered, got %d new", len(after)-before)
	}
}
