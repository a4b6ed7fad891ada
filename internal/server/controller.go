// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"

	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

// Controller serves the state lifecycle operations across every configured
// stack.
type Controller struct {
	stacks map[string]*Stack
}

// NewController builds a Controller over the given stacks.
func NewController(stacks map[string]*Stack) *Controller {
	return &Controller{stacks: stacks}
}

func (c *Controller) stack(name string) (*Stack, error) {
	s, ok := c.stacks[name]
	if !ok {
		return nil, &terrors.UnknownStackError{Stack: name}
	}
	return s, nil
}

// Get returns the current state bytes for stackName, passed through the
// stack's transformer chain in reverse.
func (c *Controller) Get(ctx context.Context, stackName string) ([]byte, error) {
	s, err := c.stack(stackName)
	if err != nil {
		return nil, err
	}

	data, err := s.StorageDriver.Get(ctx, s.StateItemKey)
	if err != nil {
		return nil, err
	}

	return s.DataTransformers.DecodeRead(ctx, s.StateItemKey.AsString(), data)
}

// Put writes new state content for stackName, after checking that lockID
// currently holds the lock.
func (c *Controller) Put(ctx context.Context, stackName, lockID string, value []byte) error {
	s, err := c.stack(stackName)
	if err != nil {
		return err
	}

	writable, ok := storage.AsWritable(s.StorageDriver)
	if !ok {
		return &terrors.UnsupportedCapabilityError{Capability: "writable", Driver: stackName}
	}

	if err := c.checkLock(ctx, s, lockID); err != nil {
		return err
	}

	data, err := s.DataTransformers.EncodeWrite(ctx, s.StateItemKey.AsString(), value)
	if err != nil {
		return err
	}

	return writable.Put(ctx, s.StateItemKey, data)
}

// Delete removes the state content for stackName, after checking that
// lockID currently holds the lock.
func (c *Controller) Delete(ctx context.Context, stackName, lockID string) error {
	s, err := c.stack(stackName)
	if err != nil {
		return err
	}

	writable, ok := storage.AsWritable(s.StorageDriver)
	if !ok {
		return &terrors.UnsupportedCapabilityError{Capability: "writable", Driver: stackName}
	}

	if err := c.checkLock(ctx, s, lockID); err != nil {
		return err
	}

	return writable.Delete(ctx, s.StateItemKey)
}

// ReadLock returns the current lock descriptor for stackName, a
// *terrors.NotFoundError if no lock is held, or a
// *terrors.UnsupportedCapabilityError if the driver is not lockable.
func (c *Controller) ReadLock(ctx context.Context, stackName string) (storage.LockBody, error) {
	s, err := c.stack(stackName)
	if err != nil {
		return storage.LockBody{}, err
	}

	lockable, ok := storage.AsLockable(s.StorageDriver)
	if !ok {
		return storage.LockBody{}, &terrors.UnsupportedCapabilityError{Capability: "lockable", Driver: stackName}
	}

	return lockable.ReadLock(ctx, s.StateItemKey)
}

// checkLock verifies that lockID matches the current lock holder.
// Non-lockable writable drivers reject Put/Delete with
// UnsupportedCapabilityError rather than being treated as always-unlocked,
// since a deployment relying on its storage driver to serialize writes
// should say so explicitly in its config instead of silently losing mutual
// exclusion.
func (c *Controller) checkLock(ctx context.Context, s *Stack, lockID string) error {
	lockable, ok := storage.AsLockable(s.StorageDriver)
	if !ok {
		return &terrors.UnsupportedCapabilityError{Capability: "lockable", Driver: s.Name}
	}

	body, err := lockable.ReadLock(ctx, s.StateItemKey)
	if err != nil {
		if _, isNotFound := err.(*terrors.NotFoundError); isNotFound {
			return &terrors.LockConflictError{Reason: "failed to lock state - no lock is present", LockID: lockID}
		}
		return err
	}

	if body.ID != lockID {
		return &terrors.LockConflictError{Reason: "failed to lock state - someone else has already locked it", LockID: lockID}
	}
	return nil
}

// Lock acquires the lock described by body for stackName. Drivers that do
// not support locking silently no-op, since locking is best-effort for a
// storage backend that was never declared lockable.
func (c *Controller) Lock(ctx context.Context, stackName string, body storage.LockBody) error {
	s, err := c.stack(stackName)
	if err != nil {
		return err
	}

	lockable, ok := storage.AsLockable(s.StorageDriver)
	if !ok {
		return nil
	}

	return lockable.AcquireLock(ctx, s.StateItemKey, body)
}

// Unlock releases the lock held for stackName.
func (c *Controller) Unlock(ctx context.Context, stackName string) error {
	s, err := c.stack(stackName)
	if err != nil {
		return err
	}

	lockable, ok := storage.AsLockable(s.StorageDriver)
	if !ok {
		return nil
	}

	return lockable.ReleaseLock(ctx, s.StateItemKey)
}

// DeleteStateLockID returns the lock ID that must hold the lock before a
// DELETE /{stack}/state can proceed, mirroring the HTTP surface's own
// lock-then-delete sequencing. Stacks with no lock held get a 409 instead
// of silently deleting state out from under a concurrent plan/apply.
func (c *Controller) DeleteStateLockID(ctx context.Context, stackName string) (string, error) {
	body, err := c.ReadLock(ctx, stackName)
	if err != nil {
		if _, isUnsupported := err.(*terrors.UnsupportedCapabilityError); isUnsupported {
			return "", nil
		}
		if _, isNotFound := err.(*terrors.NotFoundError); isNotFound {
			return "", &terrors.LockConflictError{Reason: "no lock held", LockID: ""}
		}
		return "", err
	}
	return body.ID, nil
}
