// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/terraflex/terraflex/internal/server"
)

const defaultPort = 8600

func newStartCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the state backend server in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), port)
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultPort, "Port to run the server on")
	return cmd
}

// runServer builds the controller and serves it until ctx is cancelled or
// the listener fails.
func runServer(ctx context.Context, port int) error {
	controller, err := buildController(ctx)
	if err != nil {
		return err
	}

	httpServer := server.NewHTTPServer(controller)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: httpServer.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("starting server", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
