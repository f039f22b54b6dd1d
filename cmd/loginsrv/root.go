package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the loginsrv CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loginsrv",
		Short: "Login, registration and activation server",
		Long: `loginsrv serves the login, registration and account activation
pages backed by a SQLite database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("dsn", "", "database DSN")
	cmd.PersistentFlags().Bool("verbose", false, "enable trace logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}
