package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/pkg/collector"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/monitor"
	"github.com/vigilhq/vigil/pkg/notify"
	"github.com/vigilhq/vigil/pkg/probe"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single batch of one engine component",
	Long: `Run one batch of the named component and exit. Exit code 0 on
success, non-zero with a logged error otherwise.

Examples:
  vigil run http-monitors
  vigil run collect-due-tasks`,
}

func init() {
	runCmd.AddCommand(
		oneShot("http-monitors", "Probe one batch of due monitors", runHTTPMonitors),
		oneShot("incident-notifications", "Dispatch one batch of due notifications", runNotifications),
		oneShot("collect-due-tasks", "Run one sweep of the due-task collector", runDueTasks),
		oneShot("collect-late-tasks", "Run one sweep of the late-task collector", runLateTasks),
		oneShot("collect-absent-tasks", "Run one sweep of the absent-task collector", runAbsentTasks),
		oneShot("collect-dead-task-runs", "Run one sweep of the dead-run collector", runDeadTaskRuns),
		oneShot("create-monthly-partitions", "Provision upcoming timeline partitions", runCreatePartitions),
	)
	rootCmd.AddCommand(runCmd)
}

func oneShot(use, short string, fn func(ctx context.Context, e *engine) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := fn(ctx, e)
			if err != nil {
				log.WithComponent(use).Error().Err(err).Msg("batch failed")
				return err
			}
			log.WithComponent(use).Info().Int("processed", n).Msg("batch completed")
			return nil
		},
	}
}

func runHTTPMonitors(ctx context.Context, e *engine) (int, error) {
	executor := monitor.NewExecutor(e.store, probe.NewHTTPProber(), e.blobs, e.materializer, e.broker)
	return executor.ExecuteBatch(ctx, e.cfg.HTTPMonitors.SelectLimit, e.cfg.HTTPMonitors.PingConcurrency)
}

func runNotifications(ctx context.Context, e *engine) (int, error) {
	dispatcher := notify.NewDispatcher(e.store, notifyDirectory(), nil, nil, nil, e.materializer, e.broker)
	return dispatcher.ExecuteBatch(ctx, e.cfg.Notifications.SelectLimit)
}

func runDueTasks(ctx context.Context, e *engine) (int, error) {
	return collector.NewDueCollector(e.store).Collect(ctx, time.Now().UTC(), e.cfg.DueTasks.SelectLimit)
}

func runLateTasks(ctx context.Context, e *engine) (int, error) {
	return collector.NewLateCollector(e.store, e.materializer).Collect(ctx, time.Now().UTC(), e.cfg.LateTasks.SelectLimit)
}

func runAbsentTasks(ctx context.Context, e *engine) (int, error) {
	return collector.NewAbsentCollector(e.store, e.materializer).Collect(ctx, time.Now().UTC(), e.cfg.AbsentTasks.SelectLimit)
}

func runDeadTaskRuns(ctx context.Context, e *engine) (int, error) {
	return collector.NewDeadRunCollector(e.store, e.materializer, e.broker).Collect(ctx, time.Now().UTC(), e.cfg.DeadTaskRuns.SelectLimit)
}

func runCreatePartitions(ctx context.Context, e *engine) (int, error) {
	return e.store.CreateMonthlyPartitions(ctx, time.Now().UTC())
}
