package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/pkg/blob"
	"github.com/vigilhq/vigil/pkg/config"
	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - uptime and scheduled-task monitoring engine",
	Long: `Vigil probes HTTP endpoints, tracks externally executed scheduled
tasks through heartbeats and start/finish reports, derives incidents
from observed state changes, and materializes the notification workload
for downstream delivery.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Vigil version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}

// engine bundles the collaborators shared by every subcommand.
type engine struct {
	cfg          *config.Config
	store        *storage.Postgres
	blobs        blob.Store
	broker       *events.Broker
	materializer *incident.Materializer
}

// setup loads configuration, initializes logging, and connects to the
// database.
func setup(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	store, err := storage.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConnections)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.NewLocalStore(cfg.BlobDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	broker := events.NewBroker()
	return &engine{
		cfg:          cfg,
		store:        store,
		blobs:        blobs,
		broker:       broker,
		materializer: incident.NewMaterializer(broker),
	}, nil
}

func (e *engine) close() {
	e.store.Close()
}
