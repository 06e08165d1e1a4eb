package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weaveql/weave"
	"github.com/weaveql/weave/store"
)

type serveOptions struct {
	Addr     string
	LogLevel string
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "weave",
		Short:         "weave - cross-mapping query composition",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo schema over HTTP",
		Long: `Serve the demo collection/item schema over HTTP.

Queries are accepted as POST requests carrying the usual
{query, operationName, variables} body and answered with the
data/errors envelope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	return cmd
}

func serve(opts *serveOptions) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry, err := store.Default().Registry()
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}
	engine, err := weave.New(registry, "collections", weave.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	server := &http.Server{
		Addr:    opts.Addr,
		Handler: weave.HTTPHandler(engine),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", opts.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
	return nil
}
