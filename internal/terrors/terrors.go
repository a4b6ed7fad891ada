// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package terrors defines the error kinds shared across the state lifecycle
// engine. Each kind is its own exported type so callers can recover the
// specific failure with errors.As instead of string matching.
package terrors

import "fmt"

// NotFoundError indicates the referenced object (state, lock, dependency,
// key material) does not exist in its backing store.
type NotFoundError struct {
	Kind string // "state", "lock", "dependency", "key"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// UnknownStackError indicates a request named a stack absent from the
// loaded configuration.
type UnknownStackError struct {
	Stack string
}

func (e *UnknownStackError) Error() string {
	return fmt.Sprintf("unknown stack %q", e.Stack)
}

// UnknownProviderError indicates a stack or transformer referenced a storage
// provider name absent from the loaded configuration.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown storage provider %q", e.Name)
}

// UnknownTransformerError indicates a stack referenced a transformer name
// absent from the loaded configuration.
type UnknownTransformerError struct {
	Name string
}

func (e *UnknownTransformerError) Error() string {
	return fmt.Sprintf("unknown transformer %q", e.Name)
}

// UnknownTypeError indicates a config block names a driver/transformer/
// dependency type the plugin registry has no constructor for.
type UnknownTypeError struct {
	Group string // "storage provider", "transformer", "dependency downloader"
	Type  string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type: %s", e.Group, e.Type)
}

// UnsupportedCapabilityError indicates an operation requires a capability
// tier (writable, lockable) the driver does not implement.
type UnsupportedCapabilityError struct {
	Capability string // "writable", "lockable"
	Driver     string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("storage driver %s does not support %s operations", e.Driver, e.Capability)
}

// LockConflictError indicates a lock-related operation could not proceed:
// no lock present, wrong holder, or a driver-level acquisition race. It
// always carries the attempted lock ID so the HTTP surface can echo it back
// per the wire contract.
type LockConflictError struct {
	Reason string
	LockID string
}

func (e *LockConflictError) Error() string {
	return e.Reason
}

// ConfigInvalidError indicates the configuration document failed schema or
// version validation. Fatal at startup.
type ConfigInvalidError struct {
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return e.Reason
}

// DependencyMissingError indicates a required helper binary could not be
// resolved by the dependency resolver.
type DependencyMissingError struct {
	Name string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("dependency %q has not been resolved", e.Name)
}

// DriverFailureError wraps an underlying medium error (subprocess exit,
// network response, filesystem error) that the controller surfaces as a
// 5xx on the HTTP surface.
type DriverFailureError struct {
	Driver string
	Err    error
}

func (e *DriverFailureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Driver, e.Err)
}

func (e *DriverFailureError) Unwrap() error {
	return e.Err
}
