// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

func newWrapCmd() *cobra.Command {
	var (
		port    int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "wrap -- <command> [args...]",
		Short: "Run the state backend for the duration of a wrapped command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrapped(cmd.Context(), port, verbose, args)
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultPort, "Port to run the server on")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print more details about the backend")
	return cmd
}

// runWrapped starts the server on a background goroutine, waits for it to
// answer /ready, runs the wrapped command to completion, then cancels the
// server's context.
func runWrapped(ctx context.Context, port int, verbose bool, args []string) error {
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- runServer(serverCtx, port)
	}()

	if err := waitUntilReady(serverCtx, port); err != nil {
		return fmt.Errorf("server never became ready: %w", err)
	}
	if verbose {
		log.Info("server ready", "port", port)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	cancel()
	<-serverErr

	return runErr
}

func waitUntilReady(ctx context.Context, port int) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/ready", port)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
