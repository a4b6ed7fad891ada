// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package git implements the repository-backed storage driver, built on
// go-git/go-git/v5 rather than shelling out to the git binary. State
// objects live on a tracked ref; locks are branches named "locks/<key>",
// and a successful remote push of that branch is the linearization point
// for lock acquisition.
package git

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/hashicorp/go-hclog"

	"github.com/terraflex/terraflex/internal/logging"
	"github.com/terraflex/terraflex/internal/registry"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

const typeName = "git"

const defaultRef = "main"

func init() {
	registry.RegisterStorageProvider(typeName, fromConfig, validateKey)
}

// ItemKey references one file's path inside the repository's working tree.
type ItemKey struct {
	Path string `yaml:"path"`
}

// AsString returns the path unchanged.
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

type config_ struct {
	OriginURL string `yaml:"origin_url"`
	Ref       string `yaml:"ref"`
	ClonePath string `yaml:"clone_path"`
}

// Driver is the repository-backed storage driver.
type Driver struct {
	originURL string
	ref       string
	clonePath string
	repo      *git.Repository
	log       hclog.Logger
}

var _ storage.Lockable = (*Driver)(nil)

func fromConfig(ctx context.Context, raw map[string]any, deps registry.Deps) (storage.Readable, error) {
	cfg, err := registry.Decode[config_](raw)
	if err != nil {
		return nil, err
	}
	if cfg.Ref == "" {
		cfg.Ref = defaultRef
	}
	if cfg.ClonePath == "" {
		repoName := strings.TrimSuffix(filepath.Base(cfg.OriginURL), ".git")
		cfg.ClonePath = filepath.Join(deps.Workdir, "git_storage", repoName)
	}

	return New(ctx, cfg.OriginURL, cfg.ClonePath, cfg.Ref)
}

// New clones originURL into clonePath if absent, validates the working tree,
// and returns a ready-to-use driver tracking ref.
func New(ctx context.Context, originURL, clonePath, ref string) (*Driver, error) {
	d := &Driver{
		originURL: originURL,
		ref:       ref,
		clonePath: clonePath,
		log:       logging.New("storage.git"),
	}

	if err := os.MkdirAll(filepath.Dir(clonePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent of clone path %s: %w", clonePath, err)
	}

	if _, err := os.Stat(filepath.Join(clonePath, ".git")); errors.Is(err, os.ErrNotExist) {
		d.log.Info("cloning repository", "origin", originURL, "path", clonePath)
		repo, err := git.PlainCloneContext(ctx, clonePath, false, &git.CloneOptions{
			URL:           originURL,
			ReferenceName: plumbing.NewBranchReferenceName(ref),
		})
		if err != nil {
			return nil, fmt.Errorf("cloning %s: %w", originURL, err)
		}
		d.repo = repo
	} else {
		repo, err := git.PlainOpen(clonePath)
		if err != nil {
			return nil, fmt.Errorf("opening repository at %s: %w", clonePath, err)
		}
		d.repo = repo
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) validate() error {
	wt, err := d.repo.Worktree()
	if err != nil {
		return fmt.Errorf("repository at %s has no working tree: %w", d.clonePath, err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("checking status of %s: %w", d.clonePath, err)
	}
	if !status.IsClean() {
		return fmt.Errorf("path %s is dirty - please commit or stash changes before using this provider", d.clonePath)
	}
	return nil
}

// cleanupWorkspace resets any local modifications and checks out the
// tracked ref. Get, Put, Delete and AcquireLock run it before touching the
// working tree, so each of those calls starts from a known-clean working
// tree. ReadLock runs it only after a successful lock read, and
// ReleaseLock does not run it.
func (d *Driver) cleanupWorkspace(wt *git.Worktree) error {
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting working tree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(d.ref),
		Force:  true,
	}); err != nil {
		return fmt.Errorf("checking out %s: %w", d.ref, err)
	}
	return nil
}

func (d *Driver) pull(ctx context.Context, wt *git.Worktree) error {
	err := wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(d.ref),
		SingleBranch:  true,
		Force:         true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pulling %s: %w", d.ref, err)
	}
	return nil
}

func lockBranchName(key string) string {
	return "locks/" + key
}

func lockFilePath(key string) string {
	return filepath.Join("locks", key+".lock")
}

// Get implements storage.Readable.
func (d *Driver) Get(ctx context.Context, key storage.ItemKey) ([]byte, error) {
	k, err := asKey(key)
	if err != nil {
		return nil, err
	}

	wt, err := d.repo.Worktree()
	if err != nil {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.cleanupWorkspace(wt); err != nil {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.pull(ctx, wt); err != nil {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	data, err := os.ReadFile(filepath.Join(d.clonePath, k.Path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &terrors.NotFoundError{Kind: "state", Key: k.Path}
	}
	if err != nil {
		return nil, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return data, nil
}

func (d *Driver) commitAndPush(ctx context.Context, wt *git.Worktree, relPath, message string) error {
	if _, err := wt.Add(relPath); err != nil {
		return fmt.Errorf("staging %s: %w", relPath, err)
	}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: commitSignature()}); err != nil {
		return fmt.Errorf("committing %s: %w", relPath, err)
	}

	err := d.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("%s:%s", plumbing.NewBranchReferenceName(d.ref), plumbing.NewBranchReferenceName(d.ref))),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing %s: %w", d.ref, err)
	}
	return nil
}

// Put implements storage.Writable.
func (d *Driver) Put(ctx context.Context, key storage.ItemKey, data []byte) error {
	k, err := asKey(key)
	if err != nil {
		return err
	}

	wt, err := d.repo.Worktree()
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.cleanupWorkspace(wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.pull(ctx, wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	absPath := filepath.Join(d.clonePath, k.Path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	if err := d.commitAndPush(ctx, wt, k.Path, fmt.Sprintf("Update state - %s", k.Path)); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}

// Delete implements storage.Writable.
func (d *Driver) Delete(ctx context.Context, key storage.ItemKey) error {
	k, err := asKey(key)
	if err != nil {
		return err
	}

	wt, err := d.repo.Worktree()
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.cleanupWorkspace(wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.pull(ctx, wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	absPath := filepath.Join(d.clonePath, k.Path)
	if err := os.Remove(absPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &terrors.NotFoundError{Kind: "state", Key: k.Path}
		}
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	if err := d.commitAndPush(ctx, wt, k.Path, fmt.Sprintf("Delete state - %s", k.Path)); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	return nil
}

// ReadLock implements storage.Lockable. It fetches every lock branch and
// checks out the one for key; a missing branch means no lock is held.
func (d *Driver) ReadLock(ctx context.Context, key storage.ItemKey) (storage.LockBody, error) {
	k, err := asKey(key)
	if err != nil {
		return storage.LockBody{}, err
	}

	branch := lockBranchName(k.Path)
	remoteRef := plumbing.NewRemoteReferenceName("origin", branch)

	err = d.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs: []config.RefSpec{
			config.RefSpec("+refs/heads/locks/*:refs/remotes/origin/locks/*"),
		},
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return storage.LockBody{}, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	ref, err := d.repo.Reference(remoteRef, true)
	if err != nil {
		return storage.LockBody{}, &terrors.NotFoundError{Kind: "lock", Key: k.Path}
	}

	wt, err := d.repo.Worktree()
	if err != nil {
		return storage.LockBody{}, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: ref.Hash(), Force: true}); err != nil {
		return storage.LockBody{}, &terrors.NotFoundError{Kind: "lock", Key: k.Path}
	}

	data, err := os.ReadFile(filepath.Join(d.clonePath, lockFilePath(k.Path)))
	if err != nil {
		return storage.LockBody{}, &terrors.NotFoundError{Kind: "lock", Key: k.Path}
	}

	body, err := parseLockBody(data)
	if err != nil {
		return storage.LockBody{}, &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	_ = d.cleanupWorkspace(wt)
	return body, nil
}

// AcquireLock implements storage.Lockable. The remote push of the new
// branch is the linearization point: if another holder already pushed
// locks/<key>, our push is rejected and we surface a LockConflictError. We
// deliberately do not check branch existence beforehand, since that check
// would race with a concurrent acquirer between the check and the push.
func (d *Driver) AcquireLock(ctx context.Context, key storage.ItemKey, body storage.LockBody) error {
	k, err := asKey(key)
	if err != nil {
		return err
	}

	wt, err := d.repo.Worktree()
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := d.cleanupWorkspace(wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	branchRef := plumbing.NewBranchReferenceName(lockBranchName(k.Path))
	_ = d.repo.Storer.RemoveReference(branchRef)

	if err := d.pull(ctx, wt); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: fmt.Errorf("creating lock branch: %w", err)}
	}

	lockPath := lockFilePath(k.Path)
	absLockPath := filepath.Join(d.clonePath, lockPath)
	if err := os.MkdirAll(filepath.Dir(absLockPath), 0o755); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	data, err := marshalLockBody(body)
	if err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if err := os.WriteFile(absLockPath, data, 0o644); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	if _, err := wt.Add(lockPath); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}
	if _, err := wt.Commit(fmt.Sprintf("Locking state - id %s", body.ID), &git.CommitOptions{Author: commitSignature()}); err != nil {
		return &terrors.DriverFailureError{Driver: typeName, Err: err}
	}

	err = d.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		d.log.Debug("lock push rejected, assuming conflict", "key", k.Path, "error", err)
		return &terrors.LockConflictError{Reason: "failed to lock state - remote already owns the lock branch", LockID: body.ID}
	}

	return d.cleanupWorkspace(wt)
}

// ReleaseLock implements storage.Lockable: a remote branch deletion.
func (d *Driver) ReleaseLock(ctx context.Context, key storage.ItemKey) error {
	k, err := asKey(key)
	if err != nil {
		return err
	}

	branchRef := plumbing.NewBranchReferenceName(lockBranchName(k.Path))

	err = d.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf(":%s", branchRef)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &terrors.DriverFailureError{Driver: typeName, Err: fmt.Errorf("deleting remote lock branch: %w", err)}
	}

	_ = d.repo.Storer.RemoveReference(branchRef)
	return nil
}

func asKey(key storage.ItemKey) (ItemKey, error) {
	k, ok := key.(ItemKey)
	if !ok {
		return ItemKey{}, fmt.Errorf("git driver: item key is not a git.ItemKey")
	}
	return k, nil
}

func commitSignature() *object.Signature {
	return &object.Signature{
		Name:  "terraflex",
		Email: "terraflex@localhost",
		When:  time.Now(),
	}
}

func parseLockBody(data []byte) (storage.LockBody, error) {
	var body storage.LockBody
	if err := json.Unmarshal(data, &body); err != nil {
		return storage.LockBody{}, err
	}
	return body, nil
}

func marshalLockBody(body storage.LockBody) ([]byte, error) {
	return json.Marshal(body)
}
