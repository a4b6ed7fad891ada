// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Command terraflex runs the remote state backend: a small HTTP service
// that implements the standard state-backend wire protocol over a
// pluggable storage driver and transformer chain, configured from
// ./terraflex.yaml.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/terraflex/terraflex/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "terraflex",
		Short:         "Remote state backend with pluggable storage and encryption",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newWrapCmd(),
		newPrintBindingsCmd(),
	)
	return root
}

var log = logging.New("cli")
