package main

import (
	"time"

	"github.com/spf13/cobra"
)

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired remember-me series",
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

			n, err := app.repo.RememberMe().DeleteExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			cmd.Printf("removed %d expired remember-me series\n", n)
			return nil
		},
	}
}
