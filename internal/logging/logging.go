// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package logging sets up the process-wide hclog.Logger used by the server,
// the storage drivers, and the dependency resolver. Level and format are
// controlled by the TERRAFLEX_LOG / TERRAFLEX_LOG_JSON environment
// variables.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
)

var root = sync.OnceValue(func() hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("TERRAFLEX_LOG"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            "terraflex",
		Level:           level,
		Output:          os.Stderr,
		JSONFormat:      strings.EqualFold(os.Getenv("TERRAFLEX_LOG_JSON"), "1") || strings.EqualFold(os.Getenv("TERRAFLEX_LOG_JSON"), "true"),
		IncludeLocation: level == hclog.Trace,
	})
})

// New returns a named logger derived from the process-wide root logger.
func New(name string) hclog.Logger {
	return root().Named(name)
}

// NewRequestID mints an opaque per-request identifier for log correlation.
func NewRequestID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "unknown"
	}
	return id
}
