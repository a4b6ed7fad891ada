// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package envvar

import (
	"context"
	"errors"
	"testing"

	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

func TestDriverGet(t *testing.T) {
	t.Setenv("TERRAFLEX_TEST_VAR", "hello")
	d := New()

	data, err := d.Get(context.Background(), ItemKey{Key: "TERRAFLEX_TEST_VAR"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestDriverGetMissing(t *testing.T) {
	d := New()

	_, err := d.Get(context.Background(), ItemKey{Key: "TERRAFLEX_TEST_VAR_MISSING"})
	if !errors.As(err, new(*terrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDriverIsReadOnly(t *testing.T) {
	d := New()
	var r storage.Readable = d

	if _, ok := storage.AsWritable(r); ok {
		t.Fatalf("expected envvar driver not to be writable")
	}
	if _, ok := storage.AsLockable(r); ok {
		t.Fatalf("expected envvar driver not to be lockable")
	}
}
