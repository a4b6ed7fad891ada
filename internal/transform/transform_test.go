// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package transform_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/terraflex/terraflex/internal/transform"
)

// taggingTransformer wraps content with a prefix/suffix tag on write and
// strips it on read, letting tests assert the exact order a chain applied
// its members without any real cryptography involved.
type taggingTransformer struct {
	tag string
}

func (t taggingTransformer) EncodeWrite(_ context.Context, _ string, content []byte) ([]byte, error) {
	return []byte(fmt.Sprintf("<%s>%s</%s>", t.tag, content, t.tag)), nil
}

func (t taggingTransformer) DecodeRead(_ context.Context, _ string, content []byte) ([]byte, error) {
	want := fmt.Sprintf("<%s>", t.tag)
	wantSuffix := fmt.Sprintf("</%s>", t.tag)
	s := string(content)
	if len(s) < len(want)+len(wantSuffix) || s[:len(want)] != want || s[len(s)-len(wantSuffix):] != wantSuffix {
		return nil, fmt.Errorf("content not tagged with %s: %s", t.tag, s)
	}
	return []byte(s[len(want) : len(s)-len(wantSuffix)]), nil
}

func TestChainEncodeAppliesInOrder(t *testing.T) {
	chain := transform.Chain{taggingTransformer{tag: "a"}, taggingTransformer{tag: "b"}}

	encoded, err := chain.EncodeWrite(context.Background(), "file", []byte("payload"))
	if err != nil {
		t.Fatalf("EncodeWrite: %v", err)
	}

	want := "<b><a>payload</a></b>"
	if string(encoded) != want {
		t.Fatalf("expected %s, got %s", want, encoded)
	}
}

func TestChainRoundTrip(t *testing.T) {
	chain := transform.Chain{taggingTransformer{tag: "a"}, taggingTransformer{tag: "b"}, taggingTransformer{tag: "c"}}

	original := []byte("terraform state contents")
	encoded, err := chain.EncodeWrite(context.Background(), "file", original)
	if err != nil {
		t.Fatalf("EncodeWrite: %v", err)
	}

	decoded, err := chain.DecodeRead(context.Background(), "file", encoded)
	if err != nil {
		t.Fatalf("DecodeRead: %v", err)
	}
	if string(decoded) != string(original) {
		t.Fatalf("expected round trip to recover %s, got %s", original, decoded)
	}
}

func TestEmptyChainIsIdentity(t *testing.T) {
	var chain transform.Chain

	content := []byte("unchanged")
	encoded, err := chain.EncodeWrite(context.Background(), "file", content)
	if err != nil {
		t.Fatalf("EncodeWrite: %v", err)
	}
	if string(encoded) != string(content) {
		t.Fatalf("expected identity, got %s", encoded)
	}

	decoded, err := chain.DecodeRead(context.Background(), "file", content)
	if err != nil {
		t.Fatalf("DecodeRead: %v", err)
	}
	if string(decoded) != string(content) {
		t.Fatalf("expected identity, got %s", decoded)
	}
}
