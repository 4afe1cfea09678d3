package main

import (
	"time"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	config := &serverConfig{}

	c := &cobra.Command{
		Use:     "migserver",
		Short:   "HTTP backend for monitoring and controlling a storage migration",
		Example: "  migserver --workspace /opt/storage-migration --debug",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), config)
		},
	}

	c.Flags().StringVar(
		&config.host,
		"host",
		envOr("MIGDASH_HOST", "0.0.0.0"),
		"Host interface to bind",
	)

	c.Flags().Uint16Var(&config.port, "port", 5000, "HTTP server port")

	c.Flags().StringVar(
		&config.workspace,
		"workspace",
		envOr("WORKSPACE_DIR", "/opt/storage-migration"),
		"Base directory for the status, metrics, prediction and config documents",
	)

	c.Flags().StringVar(
		&config.migrateCmd,
		"migrate-command",
		envOr("MIGDASH_MIGRATE_COMMAND", "/bin/bash migrate_storage.sh"),
		"Command run for a migration; source and target are appended as arguments",
	)

	c.Flags().StringVar(
		&config.staticDir,
		"static-dir",
		envOr("MIGDASH_STATIC_DIR", ""),
		"Directory of built frontend assets to serve (optional)",
	)

	c.Flags().DurationVar(
		&config.stopGrace,
		"stop-grace",
		10*time.Second,
		"Wait after SIGTERM before the migration process is killed",
	)

	c.Flags().BoolVar(&config.debug, "debug", false, "Enable debug logs")

	return c
}
