// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package local

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(t.TempDir(), 0o700, 0o600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDriverGetPutDelete(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	key := ItemKey{Path: "terraform.tfstate"}

	if _, err := d.Get(ctx, key); !errors.As(err, new(*terrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if err := d.Put(ctx, key, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := d.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected content: %s", data)
	}

	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.Get(ctx, key); !errors.As(err, new(*terrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
}

func TestDriverCapabilities(t *testing.T) {
	d := newTestDriver(t)
	var r storage.Readable = d

	if _, ok := storage.AsWritable(r); !ok {
		t.Fatalf("expected local driver to be writable")
	}
	if _, ok := storage.AsLockable(r); !ok {
		t.Fatalf("expected local driver to be lockable")
	}
}

func TestDriverNestedPath(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	key := ItemKey{Path: filepath.Join("nested", "dir", "state.json")}

	if err := d.Put(ctx, key, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := d.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestDriverLockLifecycle(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	key := ItemKey{Path: "terraform.tfstate"}

	if _, err := d.ReadLock(ctx, key); !errors.As(err, new(*terrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	body := storage.LockBody{ID: "l1", Operation: "OperationTypeApply", Who: "me", Version: "1", Created: "2026-01-01T00:00:00Z"}
	if err := d.AcquireLock(ctx, key, body); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	got, err := d.ReadLock(ctx, key)
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if got.ID != body.ID {
		t.Fatalf("expected lock ID %s, got %s", body.ID, got.ID)
	}

	var conflict *terrors.LockConflictError
	if err := d.AcquireLock(ctx, key, storage.LockBody{ID: "l2"}); !errors.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	} else if conflict.LockID != "l2" {
		t.Fatalf("expected conflict to carry attempted ID l2, got %s", conflict.LockID)
	}

	if err := d.ReleaseLock(ctx, key); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if _, err := d.ReadLock(ctx, key); !errors.As(err, new(*terrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError after release, got %v", err)
	}
}

// TestDriverConcurrentAcquireIsExclusive fires many concurrent lock
// acquisitions at the same key and asserts exactly one wins, exercising the
// O_CREATE|O_EXCL atomicity guarantee under real goroutine contention rather
// than a single call sequence.
func TestDriverConcurrentAcquireIsExclusive(t *testing.T) {
	d := newTestDriver(t)
	key := ItemKey{Path: "terraform.tfstate"}

	const attempts = 20
	var g errgroup.Group
	wins := make(chan string, attempts)

	for i := 0; i < attempts; i++ {
		id := string(rune('a' + i))
		g.Go(func() error {
			err := d.AcquireLock(context.Background(), key, storage.LockBody{ID: id})
			if err == nil {
				wins <- id
				return nil
			}
			var conflict *terrors.LockConflictError
			if errors.As(err, &conflict) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
}
