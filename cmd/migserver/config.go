package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type serverConfig struct {
	host       string
	port       uint16
	workspace  string
	migrateCmd string
	staticDir  string
	stopGrace  time.Duration
	debug      bool
}

func (c *serverConfig) validate() error {
	if c.workspace == "" {
		return errors.New("workspace cannot be empty")
	}

	if len(c.migrationCommand()) == 0 {
		return errors.New("migrate-command cannot be empty")
	}

	if c.staticDir != "" {
		if _, err := os.Stat(c.staticDir); err != nil {
			return fmt.Errorf("failed to stat static-dir: %w", err)
		}
	}

	return nil
}

// migrationCommand splits the configured migrate-command into the program
// and its fixed leading arguments; the run's source and target are appended
// by the job manager.
func (c *serverConfig) migrationCommand() []string {
	return strings.Fields(c.migrateCmd)
}

// envOr returns the value of the environment variable key, or def when it
// is unset. Used for flag defaults so deployments can configure through the
// environment without repeating flags.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
