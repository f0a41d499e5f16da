package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the logs table",
	Long: `Apply pending schema migrations to the configured database.

Migrations also run automatically when 'run' and 'logs' start. An existing
logs table from an older installation is kept as is.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("version", false, "Only print the current schema version")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	store, err := sqlstore.Open(context.Background(), &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	defer store.Close()

	if !mustGetBool(cmd, "version") {
		if err := store.MigrateUp(); err != nil {
			return err
		}
	}

	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	fmt.Printf("Schema version: %d\n", version)
	if dirty {
		fmt.Println("Warning: the last migration failed part way (dirty)")
	}
	return nil
}
