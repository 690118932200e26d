package cmd

import (
	"fmt"

	"databinding/core/config"
	"databinding/core/database"
	"databinding/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// inspectCmd prints the columns of the table served by the sql backend.
var inspectCmd = &cobra.Command{
	Use:   "inspect [table]",
	Short: "Show the columns a grid table exposes",
	Long:  `Connects to the configured database and lists the columns of a table, marking the primary key used as row identity.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		table := cfg.Grid.Table
		if len(args) == 1 {
			table = args[0]
		}

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		logg.Info("Inspecting table", zap.String("table", table), zap.String("driver", cfg.Database.Driver))
		columns, err := database.GetTableColumns(db, table)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return fmt.Errorf("%w: %s", database.ErrNoTable, table)
		}

		fmt.Printf("\n--- Table %s ---\n", table)
		fmt.Printf("%-24s %-20s %-6s %s\n", "COLUMN", "TYPE", "NULL", "KEY")
		for _, c := range columns {
			key := ""
			if c.IsPrimary() {
				key = "identity"
			}
			fmt.Printf("%-24s %-20s %-6s %s\n", c.Field, c.Type, c.Null, key)
		}
		fmt.Println("------------------------------")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(inspectCmd)
}
