// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package local implements the local directory storage driver: a writable,
// lockable driver backed by plain files on disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

const typeName = "local"

func init() {
	registry.RegisterStorageProvider(typeName, fromConfig, validateKey)
}

// ItemKey references one file relative to the driver's root folder. Folders
// are allowed as part of the path.
type ItemKey struct {
	Path string `yaml:"path"`
}

// AsString returns the path unchanged: it already is the stable identifier.
func (k ItemKey) AsString() string {
	return k.Path
}

// ValidateKey builds an ItemKey from an untyped params map.
func ValidateKey(raw map[string]any) (ItemKey, error) {
	return registry.Decode[ItemKey](raw)
}

func validateKey(raw map[string]any) (storage.ItemKey, error) {
	return ValidateKey(raw)
}

type config struct {
	Folder     string `yaml:"folder"`
	FolderMode int    `yaml:"folder_mode"`
	FileMode   int    `yaml:"file_mode"`
}

// Driver is the local directory storage driver. It implements
// storage.Lockable; locking is advisory except for acquisition, which uses
// O_CREATE|O_EXCL so two concurrent acquirers cannot both believe they hold
// the lock.
type Driver struct {
	folder     string
	folderMode os.FileMode
	fileMode   os.FileMode
}

var _ storage.Lockable = (*Driver)(nil)

func fromConfig(_ context.Context, raw map[string]any, _ registry.Deps) (storage.Readable, error) {
	cfg, err := registry.Decode[config](raw)
	if err != nil {
		return nil, err
	}

	folderMode := os.FileMode(0o700)
	if cfg.FolderMode != 0 {
		folderMode = os.FileMode(cfg.FolderMode)
	}
	fileMode := os.FileMode(0o600)
	if cfg.FileMode != 0 {
		fileMode = os.FileMode(cfg.FileMode)
	}

	return New(cfg.Folder, folderMode, fileMode)
}

// New constructs a local directory driver rooted at folder, creating it
// with folderMode if it does not already exist.
func New(folder string, folderMode, fileMode os.FileMode) (*Driver, error) {
	if _, err := os.Stat(folder); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(folder, folderMode); err != nil {
			return nil, fmt.Errorf("creating local storage folder %s: %w", folder, err)
		}
		if err := os.Chmod(folder, folderMode); err != nil {
			return nil, fmt.Errorf("setting mode on local storage folder %s: %w", folder, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking local storage folder %s: %w", folder, err)
	}

	return &Driver{folder: folder, folderMode: folderMode, fileMode: fileMode}, nil
}

func (d *Driver) itemPath(key storage.ItemKey) (string, error) {
	k, ok := key.(ItemKey)
	if !ok {
		return "", fmt.Errorf("local driver: item key is not a local.ItemKey")
	}
	return filepath.Join(d.folder, k.Path), nil
}

func (d *Driver) lockPath(key storage.ItemKey) (string, error) {
	k, ok := key.(ItemKey)
	if !ok {
		return "", fmt.Errorf("local driver: item key is not a local.ItemKey")
	}
	return filepath.Join(d.folder, "locks", k.Path+".lock"), nil
}

// Get implements storage.Readable.
func (d *Driver) Get(_ context.Context, key storage.ItemKey) ([]byte, error) {
	path, err := d.itemPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &terrors.NotFoundError{Kind: "state", Key: key.AsString()}
	}
	if err != nil {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return data, nil
}

// Put implements storage.Writable.
func (d *Driver) Put(_ context.Context, key storage.ItemKey, data []byte) error {
	path, err := d.itemPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), d.folderMode); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := os.WriteFile(path, data, d.fileMode); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := os.Chmod(path, d.fileMode); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}

// Delete implements storage.Writable.
func (d *Driver) Delete(_ context.Context, key storage.ItemKey) error {
	path, err := d.itemPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &terrors.NotFoundError{Kind: "state", Key: key.AsString()}
		}
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}

// ReadLock implements storage.Lockable.
func (d *Driver) ReadLock(_ context.Context, key storage.ItemKey) (storage.LockBody, error) {
	path, err := d.lockPath(key)
	if err != nil {
		return storage.LockBody{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return storage.LockBody{}, &terrors.NotFoundError{Kind: "lock", Key: key.AsString()}
	}
	if err != nil {
		return storage.LockBody{}, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	var body storage.LockBody
	if err := json.Unmarshal(data, &body); err != nil {
		return storage.LockBody{}, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return body, nil
}

// AcquireLock implements storage.Lockable. The lock file is created with
// O_CREATE|O_EXCL, so a concurrent acquirer loses with ErrExist instead of
// silently clobbering the winner's lock file.
func (d *Driver) AcquireLock(_ context.Context, key storage.ItemKey, body storage.LockBody) error {
	path, err := d.lockPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), d.folderMode); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, d.fileMode)
	if errors.Is(err, os.ErrExist) {
		return &terrors.LockConflictError{Reason: "lock already held", LockID: body.ID}
	}
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}

// ReleaseLock implements storage.Lockable.
func (d *Driver) ReleaseLock(_ context.Context, key storage.ItemKey) error {
	path, err := d.lockPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &terrors.NotFoundError{Kind: "lock", Key: key.AsString()}
		}
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}
