// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newInitCmd is the interactive config-file wizard's entry point. The
// wizard itself (prompting for a storage backend, a key location, and
// optional encryption, then writing ./terraflex.yaml) is an external
// collaborator surface per the design: it talks to a human over a
// terminal rather than exercising any of the state-lifecycle engine, so it
// is stubbed here rather than fully implemented.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create a terraflex.yaml configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(configFileName); err == nil {
				return fmt.Errorf("%s already exists", configFileName)
			}
			return fmt.Errorf("interactive configuration is not available in this build; write %s by hand", configFileName)
		},
	}
}
