// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package storage defines the storage driver capability hierarchy
// (readable, writable, lockable) and the ItemKey abstraction every concrete
// driver implements a variant of. Capability is expressed as distinct
// interface types rather than a single fat interface with optional methods,
// so the controller can feature-detect a driver's capability at runtime
// with a type assertion.
package storage

import (
	"context"

	"github.com/terraflex/terraflex/internal/terrors"
)

// ItemKey is a typed, driver-specific reference to one object inside a
// storage driver. Every driver defines its own key schema and constructs
// keys from an untyped map via its own ValidateKey.
type ItemKey interface {
	// AsString returns the stable string identifier for this key, used by
	// transformers as the logical file identifier. Must be deterministic
	// across process restarts for equal inputs.
	AsString() string
}

// LockBody is the canonical lock descriptor. Field names and case are part
// of the wire contract and must not be changed.
type LockBody struct {
	ID        string `json:"ID" yaml:"ID"`
	Operation string `json:"Operation" yaml:"Operation"`
	Who       string `json:"Who" yaml:"Who"`
	Version   string `json:"Version" yaml:"Version"`
	Created   string `json:"Created" yaml:"Created"`
}

// Readable is the minimal capability tier: a driver that can only be read.
type Readable interface {
	// Get returns the bytes stored at key, or a *terrors.NotFoundError if
	// absent.
	Get(ctx context.Context, key ItemKey) ([]byte, error)
}

// Writable extends Readable with write access.
type Writable interface {
	Readable

	Put(ctx context.Context, key ItemKey, data []byte) error
	Delete(ctx context.Context, key ItemKey) error
}

// Lockable extends Writable with the lock protocol.
type Lockable interface {
	Writable

	// AcquireLock takes the lock for key. Implementations surface
	// driver-level conflicts (another holder already owns the lock) as a
	// *terrors.LockConflictError carrying body.ID.
	AcquireLock(ctx context.Context, key ItemKey, body LockBody) error

	// ReadLock returns the current lock descriptor, or a
	// *terrors.NotFoundError if no lock is held.
	ReadLock(ctx context.Context, key ItemKey) (LockBody, error)

	ReleaseLock(ctx context.Context, key ItemKey) error
}

// AsWritable feature-detects the Writable tier.
func AsWritable(d Readable) (Writable, bool) {
	w, ok := d.(Writable)
	return w, ok
}

// AsLockable feature-detects the Lockable tier.
func AsLockable(d Readable) (Lockable, bool) {
	l, ok := d.(Lockable)
	return l, ok
}

// NotFound builds the standard not-found error for a driver Get/ReadLock.
func NotFound(kind, key string) error {
	return &terrors.NotFoundError{Kind: kind, Key: key}
}
