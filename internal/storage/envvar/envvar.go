// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package envvar implements the read-only environment-variable storage
// driver: a key names a process environment variable, and Get returns its
// bytes.
package envvar

import (
	"context"
	"errors"
	"os"

	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

const typeName = "envvar"

func init() {
	registry.RegisterStorageProvider(typeName, fromConfig, validateKey)
}

// ItemKey names the environment variable to read.
type ItemKey struct {
	Key string `yaml:"key"`
}

// AsString returns the variable name unchanged.
func (k ItemKey) AsString() string {
	return k.Key
}

// ValidateKey builds an ItemKey from an untyped params map.
func ValidateKey(raw map[string]any) (ItemKey, error) {
	return registry.Decode[ItemKey](raw)
}

func validateKey(raw map[string]any) (storage.ItemKey, error) {
	return ValidateKey(raw)
}

// Driver is the environment-variable backed read-only storage driver.
type Driver struct{}

var _ storage.Readable = (*Driver)(nil)

func fromConfig(_ context.Context, _ map[string]any, _ registry.Deps) (storage.Readable, error) {
	return New(), nil
}

// New constructs an environment-variable storage driver. It is stateless.
func New() *Driver {
	return &Driver{}
}

// Get implements storage.Readable.
func (d *Driver) Get(_ context.Context, key storage.ItemKey) ([]byte, error) {
	k, ok := key.(ItemKey)
	if !ok {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: errors.New("item key is not an envvar.ItemKey")}
	}

	value, ok := os.LookupEnv(k.Key)
	if !ok {
		return nil, &terrors.NotFoundError{Kind: "state", Key: k.Key}
	}
	return []byte(value), nil
}
