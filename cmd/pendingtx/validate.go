package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pendingtx configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It does not connect to the storage backend. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pendingtx validate -c config.yaml
  pendingtx validate -c config.yaml --env-file .env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	validateCmd.Flags().String("env-file", "", "dotenv file loaded before the config")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:        %d\n", cfg.Port)
	fmt.Fprintf(out, "  Storage key: %s\n", cfg.StorageKey)
	fmt.Fprintf(out, "  Backend:     %s\n", cfg.Backend.Type)
	if t := cfg.Tracker; t != nil {
		fmt.Fprintf(out, "  Tracker:     every %s, %d workers\n", t.Interval.Duration(), t.MaxConcurrency)
	} else {
		fmt.Fprintf(out, "  Tracker:     disabled\n")
	}

	return nil
}
