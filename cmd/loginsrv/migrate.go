package main

import (
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			app := &App{config: cfg, logger: newLogger(cfg)}
			defer app.Close()

			if err := WithPersistence(cmd.Context(), app); err != nil {
				return err
			}

			cmd.Println("database is up to date")
			return nil
		},
	}
}
