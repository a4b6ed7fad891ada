// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terraflex/terraflex/internal/terrors"
)

func newPrintBindingsCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "print-bindings <stack>",
		Short: "Print the backend \"http\" configuration block for a stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stackName := args[0]

			controller, err := buildController(cmd.Context())
			if err != nil {
				return err
			}

			lockable := true
			_, err = controller.ReadLock(cmd.Context(), stackName)
			var notFound *terrors.NotFoundError
			var unsupported *terrors.UnsupportedCapabilityError
			switch {
			case err == nil, errors.As(err, &notFound):
				// Lockable, and either a lock is currently held or none is - both
				// are normal states for a configured stack.
			case errors.As(err, &unsupported):
				lockable = false
			default:
				return err
			}

			fmt.Println(renderBindings(stackName, port, lockable))
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultPort, "Port the server is listening on")
	return cmd
}

// renderBindings produces the backend "http" {} block clients should use
// to talk to this stack. Lock lines are omitted for stacks whose storage
// driver does not support locking.
func renderBindings(stack string, port int, lockable bool) string {
	base := fmt.Sprintf("http://localhost:%d/%s", port, stack)

	out := "backend \"http\" {\n"
	out += fmt.Sprintf("  address         = %q\n", base+"/state")
	if lockable {
		out += fmt.Sprintf("  lock_address    = %q\n", base+"/lock")
		out += "  lock_method     = \"PUT\"\n"
		out += fmt.Sprintf("  unlock_address  = %q\n", base+"/lock")
		out += "  unlock_method   = \"DELETE\"\n"
	}
	out += "}"
	return out
}
