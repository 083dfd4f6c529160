// Package cli — serve.go implements the "dockports serve" command.
//
// serve wires the full pipeline — settings, Docker client, hidden-port
// store, service-name map, aggregation service — behind the HTTP API
// and runs it until SIGINT or SIGTERM.
package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockports/internal/aggregate"
	"github.com/mmr-tortoise/dockports/internal/api"
	"github.com/mmr-tortoise/dockports/internal/config"
	"github.com/mmr-tortoise/dockports/internal/docker"
	"github.com/mmr-tortoise/dockports/internal/hidden"
	"github.com/mmr-tortoise/dockports/internal/hostscan"
)

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dockports HTTP API",
		Long: `Serve the merged port view over HTTP.

Every request performs a fresh aggregation pass against Docker and the
host socket tables; there is no cache. The server shuts down gracefully
on SIGINT or SIGTERM.

Examples:
  dockports serve
  dockports serve --config /etc/dockports.yaml
  DOCKPORTS_LISTEN_PORT=9000 dockports serve`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe is the main logic of the serve command.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	VerboseLog("Configuration loaded: listening on %s, state in %s", cfg.Addr(), cfg.DataDir)

	store, err := hidden.NewStore(cfg.HiddenPortsFile)
	if err != nil {
		return err
	}

	names, err := config.LoadServiceNames(cfg.ServiceNamesFile)
	if err != nil {
		return err
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// A daemon that is down right now is not fatal: the aggregator
	// degrades per request, and the daemon may come back without a
	// restart of this service.
	if err := cli.Ping(ctx); err != nil {
		log.Printf("Warning: %v — serving degraded until the daemon responds", err)
	} else {
		VerboseLog("Connected to Docker daemon")
	}

	service := aggregate.NewService(
		docker.NewSource(cli),
		hostscan.NewScanner(),
		store,
		names,
		cfg.SourceTimeout,
	)

	server := api.NewServer(cfg.Addr(), api.NewRouter(api.NewHandler(service, store, names)))

	// Run the server on its own goroutine so the signal wait below owns
	// the main flow.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("dockports listening on http://%s", cfg.Addr())
		errCh <- server.Start()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return &serverError{err: err}
		}
		return nil
	case <-sigCtx.Done():
		log.Printf("Shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			return &serverError{err: fmt.Errorf("shutdown: %w", err)}
		}
		// Drain the server goroutine; Start returns nil after a clean
		// Shutdown.
		if err := <-errCh; err != nil {
			return &serverError{err: err}
		}
		return nil
	}
}
