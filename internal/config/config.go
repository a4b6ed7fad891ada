// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package config loads and validates the terraflex configuration file: the
// storage providers, transformers and stacks available to the HTTP state
// surface, decoded with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/terraflex/terraflex/internal/terrors"
)

// CurrentVersion is the only config major version this build understands.
const CurrentVersion = "2"

// StorageProviderUsageConfig references a configured storage provider
// instance and the opaque key params to pass to its ValidateKey. Used both
// by a stack's state_storage and by transformers (such as encryption) that
// import key material from another provider.
type StorageProviderUsageConfig struct {
	Provider string         `yaml:"provider"`
	Params   map[string]any `yaml:"params"`
}

// StorageProviderConfig is one named storage provider instance: a type
// discriminator plus whatever extra fields that type's factory expects.
// The extra fields stay in Extra and get re-decoded by the driver factory.
type StorageProviderConfig struct {
	Type  string
	Extra map[string]any
}

// TransformerConfig is one named transformer instance, shaped the same way
// as StorageProviderConfig.
type TransformerConfig struct {
	Type  string
	Extra map[string]any
}

// StackConfig is one named stack: where its state lives, and the ordered
// list of transformers applied to it.
type StackConfig struct {
	StateStorage StorageProviderUsageConfig `yaml:"state_storage"`
	Transformers []string                   `yaml:"transformers"`
}

// File is the parsed, but not yet wired, top-level configuration document.
type File struct {
	Version          string                           `yaml:"version"`
	StorageProviders map[string]StorageProviderConfig `yaml:"storage_providers"`
	Transformers     map[string]TransformerConfig      `yaml:"transformers"`
	Stacks           map[string]StackConfig            `yaml:"stacks"`
}

// unmarshalTyped decodes a map with at least a "type" key, keeping every
// other key around verbatim so a plugin-specific factory can decode them.
func unmarshalTyped(node *yaml.Node) (string, map[string]any, error) {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return "", nil, err
	}

	typeValue, ok := raw["type"]
	if !ok {
		return "", nil, fmt.Errorf("missing required field: type")
	}
	typeName, ok := typeValue.(string)
	if !ok {
		return "", nil, fmt.Errorf("field type must be a string")
	}
	delete(raw, "type")
	return typeName, raw, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *StorageProviderConfig) UnmarshalYAML(node *yaml.Node) error {
	typeName, raw, err := unmarshalTyped(node)
	if err != nil {
		return err
	}
	c.Type = typeName
	c.Extra = raw
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *TransformerConfig) UnmarshalYAML(node *yaml.Node) error {
	typeName, raw, err := unmarshalTyped(node)
	if err != nil {
		return err
	}
	c.Type = typeName
	c.Extra = raw
	return nil
}

// Load reads and parses the config document at path, validating its
// version but not yet resolving any provider/transformer reference - that
// happens once the plugin registry is queried, in internal/server.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &terrors.ConfigInvalidError{Reason: fmt.Sprintf("parsing %s: %s", path, err)}
	}
	if f.Version == "" {
		f.Version = CurrentVersion
	}

	if err := validateVersion(f.Version); err != nil {
		return nil, err
	}

	return &f, nil
}

// validateVersion enforces major-version equality only: terraflex does not
// attempt any cross-version migration, so anything other than an exact
// match is an error pointing the operator at the right fix.
func validateVersion(version string) error {
	current, err := majorVersion(CurrentVersion)
	if err != nil {
		return fmt.Errorf("parsing built-in config version %q: %w", CurrentVersion, err)
	}
	got, err := majorVersion(version)
	if err != nil {
		return &terrors.ConfigInvalidError{Reason: fmt.Sprintf("invalid config version %q: %s", version, err)}
	}

	switch {
	case got < current:
		return &terrors.ConfigInvalidError{
			Reason: fmt.Sprintf("unsupported config version (%s < %s) - please upgrade the config file", version, CurrentVersion),
		}
	case got > current:
		return &terrors.ConfigInvalidError{
			Reason: fmt.Sprintf("unsupported config version (%s > %s) - please check if there is a newer version of terraflex", version, CurrentVersion),
		}
	}
	return nil
}

func majorVersion(version string) (int, error) {
	major := strings.SplitN(version, ".", 2)[0]
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("not a valid version: %q", version)
	}
	return n, nil
}
