package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recorded entries and exits",
	Long: `List recorded entries and exits, newest first.

Examples:
  # Last 100 rows
  attendance logs

  # Everyone currently inside
  attendance logs --open

  # One person, as JSON
  attendance logs --empid "Jan Novák" --json`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().String("empid", "", "Only rows of this identity")
	logsCmd.Flags().Bool("open", false, "Only rows without an exit time")
	logsCmd.Flags().Int("limit", constants.DefaultLogLimit, "Maximum number of rows (0 = all)")
	logsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := sqlstore.Initialize(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", cfg.Database.Driver, err)
	}
	defer store.Close()

	rows, err := store.ListLogs(ctx, database.LogFilter{
		EmpID:    identity.Identity(mustGetString(cmd, "empid")),
		OpenOnly: mustGetBool(cmd, "open"),
		Limit:    mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if rows == nil {
			rows = []database.LogRow{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No log rows found")
		return nil
	}

	fmt.Printf("%-6s  %-24s  %-19s  %-19s\n", "ID", "EMPID", "ENTRY", "EXIT")
	for _, r := range rows {
		exit := "-"
		if r.ExitTime != nil {
			exit = database.FormatTime(*r.ExitTime)
		}
		fmt.Printf("%-6d  %-24s  %-19s  %-19s\n", r.ID, r.EmpID, database.FormatTime(r.EntryTime), exit)
	}
	return nil
}
