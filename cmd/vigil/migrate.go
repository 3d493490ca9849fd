package main

import (
	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/pkg/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded schema migrations to the configured database and
exit. Safe to run repeatedly; already-applied migrations are skipped.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.store.Migrate(ctx); err != nil {
		log.Errorf("migration failed", err)
		return err
	}
	log.Info("migrations applied")
	return nil
}
