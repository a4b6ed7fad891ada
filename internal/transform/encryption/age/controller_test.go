// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package age

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeFakeBinary drops a tiny shell script standing in for the real age /
// age-keygen binaries, so the subprocess plumbing (argument order, stdin
// piping, stdout capture) can be exercised without fetching a real release.
func writeFakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary fixture requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-age")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestBinaryControllerRun(t *testing.T) {
	bin := writeFakeBinary(t, `echo "ARGS:$@"; cat`)
	c := &binaryController{binaryPath: bin}

	out, err := c.run(context.Background(), []string{"--flag", "value"}, []byte("hello"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "ARGS:--flag value\nhello"
	if string(out) != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestBinaryControllerRunFailure(t *testing.T) {
	bin := writeFakeBinary(t, `echo "boom" 1>&2; exit 1`)
	c := &binaryController{binaryPath: bin}

	if _, err := c.run(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error from failing binary")
	} else if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include stderr, got %v", err)
	}
}

func TestControllerEncryptPassesPublicKeyAndContent(t *testing.T) {
	bin := writeFakeBinary(t, `echo "ARGS:$@"; cat`)
	c := newController(bin, []byte("AGE-SECRET-KEY"), []byte("age1publickey\n"))

	out, err := c.Encrypt(context.Background(), "terraform.tfstate", []byte("plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	want := "ARGS:--encrypt -r age1publickey\nplaintext"
	if string(out) != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestControllerDecryptWritesKeyToTempFile(t *testing.T) {
	bin := writeFakeBinary(t, `echo "ARGS:$@"; cat`)
	c := newController(bin, []byte("AGE-SECRET-KEY-1Q2W3E"), []byte("age1publickey\n"))

	out, err := c.Decrypt(context.Background(), "terraform.tfstate", []byte("ciphertext"))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !strings.HasPrefix(string(out), "ARGS:--decrypt -i ") {
		t.Fatalf("expected args to include --decrypt -i <path>, got %q", out)
	}
	if !strings.HasSuffix(string(out), "\nciphertext") {
		t.Fatalf("expected stdin to be forwarded, got %q", out)
	}
}

func TestKeygenControllerPublicKeyFromBytes(t *testing.T) {
	bin := writeFakeBinary(t, `echo "age1derivedpublickey"`)
	kc := newKeygenController(bin)

	pub, err := kc.PublicKeyFromBytes(context.Background(), []byte("AGE-SECRET-KEY"))
	if err != nil {
		t.Fatalf("PublicKeyFromBytes: %v", err)
	}
	if !bytes.Equal(pub, []byte("age1derivedpublickey")) {
		t.Fatalf("unexpected public key: %q", pub)
	}
}
