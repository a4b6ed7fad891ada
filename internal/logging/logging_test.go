// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"testing"
)

func TestNewReturnsNamedLogger(t *testing.T) {
	l := New("test-component")
	if l.Name() != "terraflex.test-component" {
		t.Fatalf("unexpected logger name: %s", l.Name())
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	if a == "" || b == "" {
		t.Fatalf("expected non-empty request IDs")
	}
	if a == b {
		t.Fatalf("expected distinct request IDs, got %s twice", a)
	}
}
