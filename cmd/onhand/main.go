// Command onhand ingests the nightly on-hand inventory extract into the
// staging table.
//
// Usage:
//
//	onhand run       # one pipeline run, exits non-zero on failure
//	onhand schedule  # runs every SCHEDULE_INTERVAL until SIGINT/SIGTERM
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
