// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package age implements the "age" encryption key_type: key material comes
// from an imported storage provider, and the actual encrypt/decrypt/keygen
// work is delegated to the age and age-keygen binaries over stdin/stdout.
// We shell out rather than linking filippo.io/age so that the dependency
// resolver and its binary cache stay in the loop for fetching and caching
// those binaries.
package age

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// binaryController runs one external binary with per-call args,
// piping content through stdin and returning stdout.
type binaryController struct {
	binaryPath string
}

func (c *binaryController) run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s %v: %w: %s", c.binaryPath, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// controller wraps the age binary with a fixed key pair.
type controller struct {
	binaryController
	privateKey []byte
	publicKey  []byte
}

func newController(binaryPath string, privateKey, publicKey []byte) *controller {
	return &controller{
		binaryController: binaryController{binaryPath: binaryPath},
		privateKey:       privateKey,
		publicKey:        publicKey,
	}
}

// Encrypt runs `age --encrypt -r <publicKey>` with content on stdin.
func (c *controller) Encrypt(ctx context.Context, _ string, content []byte) ([]byte, error) {
	return c.run(ctx, []string{"--encrypt", "-r", string(bytes.TrimSpace(c.publicKey))}, content)
}

// Decrypt runs `age --decrypt -i <keyfile>` with content on stdin. The
// private key is written to a short-lived temp file, removed on every exit
// path, since age only accepts key material as a file.
func (c *controller) Decrypt(ctx context.Context, _ string, content []byte) ([]byte, error) {
	keyFile, err := os.CreateTemp("", "terraflex-age-key-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary key file: %w", err)
	}
	defer os.Remove(keyFile.Name())
	defer keyFile.Close()

	if _, err := keyFile.Write(c.privateKey); err != nil {
		return nil, fmt.Errorf("writing temporary key file: %w", err)
	}
	if err := keyFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary key file: %w", err)
	}

	return c.run(ctx, []string{"--decrypt", "-i", keyFile.Name()}, content)
}

// keygenController wraps the age-keygen binary.
type keygenController struct {
	binaryController
}

func newKeygenController(binaryPath string) *keygenController {
	return &keygenController{binaryController{binaryPath: binaryPath}}
}

// PublicKeyFromBytes runs `age-keygen -y` with the private key on stdin,
// returning the derived public key.
func (c *keygenController) PublicKeyFromBytes(ctx context.Context, privateKey []byte) ([]byte, error) {
	out, err := c.run(ctx, []string{"-y"}, privateKey)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(out), nil
}
