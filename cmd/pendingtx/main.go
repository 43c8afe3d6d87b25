// Package main is the entry point for the pendingtx CLI.
//
// pendingtx can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pendingtx serve -c config.yaml      # Start the API and dashboard
//	pendingtx validate -c config.yaml   # Validate configuration
//	pendingtx bookings list -c config.yaml
//	pendingtx version                   # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pendingtx",
	Short: "Track bookings waiting for on-chain confirmation",
	Long: `pendingtx keeps the list of bookings whose payment transaction has been
submitted but not yet confirmed, persisted in a shared storage slot.

It serves the list over a small REST API and a live dashboard, and can poll
a transaction status API to drop bookings once their transaction settles.

Quick start:
  1. Create a config file (pendingtx.yaml)
  2. Run: pendingtx serve -c pendingtx.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  backend:
    type: mongo
    mongo:
      uri: ${MONGO_URI}
  tracker:
    url_template: "https://api.hiro.so/extended/v1/tx/{{.TxID}}"`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pendingtx binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pendingtx %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
