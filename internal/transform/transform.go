// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package transform defines the reversible byte-level transform contract
// applied to state content on read and write, and the ordered chain that
// composes several of them.
package transform

import "context"

// Transformer is a pair of functions applied to the bytes of a single
// logical file. EncodeWrite runs before the storage driver's Put; DecodeRead
// runs after the storage driver's Get. DecodeRead(EncodeWrite(x)) must equal
// x for any (fileID, x) produced by the same configured transformer.
type Transformer interface {
	EncodeWrite(ctx context.Context, fileID string, content []byte) ([]byte, error)
	DecodeRead(ctx context.Context, fileID string, content []byte) ([]byte, error)
}

// Chain is an ordered transformer list. Encode applies in declared order;
// decode applies in reverse.
type Chain []Transformer

// EncodeWrite folds the chain forward: chain[0] runs first.
func (c Chain) EncodeWrite(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	var err error
	for _, t := range c {
		content, err = t.EncodeWrite(ctx, fileID, content)
		if err != nil {
			return nil, err
		}
	}
	return content, nil
}

// DecodeRead folds the chain in reverse: the last-applied transformer on
// write is the first to be undone on read.
func (c Chain) DecodeRead(ctx context.Context, fileID string, content []byte) ([]byte, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		content, err = c[i].DecodeRead(ctx, fileID, content)
		if err != nil {
			return nil, err
		}
	}
	return content, nil
}
