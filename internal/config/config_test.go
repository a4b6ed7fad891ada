// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/terraflex/terraflex/internal/terrors"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terraflex.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaultsVersionWhenAbsent(t *testing.T) {
	path := writeConfig(t, `
storage_providers:
  primary:
    type: local
    folder: ./state
stacks:
  default:
    state_storage:
      provider: primary
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Version != CurrentVersion {
		t.Fatalf("expected default version %s, got %s", CurrentVersion, f.Version)
	}
	if f.StorageProviders["primary"].Type != "local" {
		t.Fatalf("unexpected storage provider type: %+v", f.StorageProviders["primary"])
	}
	if f.StorageProviders["primary"].Extra["folder"] != "./state" {
		t.Fatalf("expected folder to survive in Extra, got %+v", f.StorageProviders["primary"].Extra)
	}
}

func TestLoadParsesStacksAndTransformers(t *testing.T) {
	path := writeConfig(t, `
version: "2"
storage_providers:
  primary:
    type: local
    folder: ./state
transformers:
  crypt:
    type: encryption
    key_type: age
stacks:
  default:
    state_storage:
      provider: primary
    transformers:
      - crypt
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stack, ok := f.Stacks["default"]
	if !ok {
		t.Fatalf("expected stack %q to be present", "default")
	}
	if stack.StateStorage.Provider != "primary" {
		t.Fatalf("unexpected state storage provider: %s", stack.StateStorage.Provider)
	}
	if len(stack.Transformers) != 1 || stack.Transformers[0] != "crypt" {
		t.Fatalf("unexpected transformers list: %v", stack.Transformers)
	}
	if f.Transformers["crypt"].Type != "encryption" {
		t.Fatalf("unexpected transformer type: %+v", f.Transformers["crypt"])
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{name: "matches current major", version: CurrentVersion, wantErr: false},
		{name: "matches current major with minor", version: CurrentVersion + ".3", wantErr: false},
		{name: "older major", version: "1", wantErr: true},
		{name: "newer major", version: "3", wantErr: true},
		{name: "not a number", version: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVersion(tt.version)
			if tt.wantErr && !errors.As(err, new(*terrors.ConfigInvalidError)) {
				t.Fatalf("expected ConfigInvalidError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadMissingTypeField(t *testing.T) {
	path := writeConfig(t, `
storage_providers:
  primary:
    folder: ./state
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for storage provider missing type")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
