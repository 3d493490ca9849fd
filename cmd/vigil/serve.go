package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/pkg/collector"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
	"github.com/vigilhq/vigil/pkg/monitor"
	"github.com/vigilhq/vigil/pkg/notify"
	"github.com/vigilhq/vigil/pkg/probe"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run all engine components until interrupted",
	Long: `Start every worker pool (monitor executor, the four collectors, the
notification dispatcher) plus the metrics endpoint, and run until
SIGINT/SIGTERM. In-flight batches complete before shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// notifyDirectory returns the recipient directory. Recipient data lives
// in the identity service, an external collaborator; standalone runs
// fall back to an empty directory.
func notifyDirectory() notify.Directory {
	return notify.EmptyDirectory{}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	e.broker.Start()
	defer e.broker.Stop()

	if _, err := e.store.CreateMonthlyPartitions(ctx, time.Now().UTC()); err != nil {
		return err
	}

	cfg := e.cfg
	executor := monitor.NewExecutor(e.store, probe.NewHTTPProber(), e.blobs, e.materializer, e.broker)
	dispatcher := notify.NewDispatcher(e.store, notifyDirectory(), nil, nil, nil, e.materializer, e.broker)
	due := collector.NewDueCollector(e.store)
	late := collector.NewLateCollector(e.store, e.materializer)
	absent := collector.NewAbsentCollector(e.store, e.materializer)
	dead := collector.NewDeadRunCollector(e.store, e.materializer, e.broker)

	pools := []*worker.Pool{
		worker.NewPool("http-monitors", cfg.HTTPMonitors.ConcurrentTasks, cfg.HTTPMonitors.Interval(),
			func(ctx context.Context) (int, error) {
				return executor.ExecuteBatch(ctx, cfg.HTTPMonitors.SelectLimit, cfg.HTTPMonitors.PingConcurrency)
			}),
		worker.NewPool("incident-notifications", cfg.Notifications.ConcurrentTasks, cfg.Notifications.Interval(),
			func(ctx context.Context) (int, error) {
				return dispatcher.ExecuteBatch(ctx, cfg.Notifications.SelectLimit)
			}),
		worker.NewPool("due-tasks", cfg.DueTasks.ConcurrentTasks, cfg.DueTasks.Interval(),
			func(ctx context.Context) (int, error) {
				return due.Collect(ctx, time.Now().UTC(), cfg.DueTasks.SelectLimit)
			}),
		worker.NewPool("late-tasks", cfg.LateTasks.ConcurrentTasks, cfg.LateTasks.Interval(),
			func(ctx context.Context) (int, error) {
				return late.Collect(ctx, time.Now().UTC(), cfg.LateTasks.SelectLimit)
			}),
		worker.NewPool("absent-tasks", cfg.AbsentTasks.ConcurrentTasks, cfg.AbsentTasks.Interval(),
			func(ctx context.Context) (int, error) {
				return absent.Collect(ctx, time.Now().UTC(), cfg.AbsentTasks.SelectLimit)
			}),
		worker.NewPool("dead-task-runs", cfg.DeadTaskRuns.ConcurrentTasks, cfg.DeadTaskRuns.Interval(),
			func(ctx context.Context) (int, error) {
				return dead.Collect(ctx, time.Now().UTC(), cfg.DeadTaskRuns.SelectLimit)
			}),
		// Partition maintenance: once a day is plenty.
		worker.NewPool("partition-maintenance", 1, 24*time.Hour,
			func(ctx context.Context) (int, error) {
				return e.store.CreateMonthlyPartitions(ctx, time.Now().UTC())
			}),
	}

	for _, p := range pools {
		p.Start(ctx)
	}

	srv := startMetricsServer(cfg.ListenAddr)
	metrics.SetVersion(Version)
	// setup already pinged the database once; the watcher keeps the
	// readiness entry current from here.
	metrics.RegisterComponent("database", true, "")
	go watchDatabase(ctx, e.store)

	log.Info("engine started")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// Stop taking new ticks; in-flight batches finish and commit.
	for _, p := range pools {
		p.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

// watchDatabase periodically pings the store and updates the database
// entry of the readiness probe.
func watchDatabase(ctx context.Context, store storage.Store) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := store.Ping(ctx); err != nil {
				metrics.UpdateComponent("database", false, err.Error())
				continue
			}
			metrics.UpdateComponent("database", true, "")
		case <-ctx.Done():
			return
		}
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server failed", err)
		}
	}()
	return srv
}
