package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pendingtx/config"
	"github.com/jpalmerr/pendingtx/pending"
)

// operationTimeout bounds a single bookings command, connection included.
const operationTimeout = 30 * time.Second

// bookingsCmd groups commands operating directly on the stored list.
var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Inspect or edit the stored pending list",
	Long: `Inspect or edit the pending list held by the configured backend.

These commands open the backend directly, so a running server sharing the
same backend sees their changes. They need a persistent backend; the memory
backend only lives as long as one process.

Example:
  pendingtx bookings list -c config.yaml
  pendingtx bookings add -c config.yaml --tx-id 0xabc --property-id 5
  pendingtx bookings remove -c config.yaml 0xabc
  pendingtx bookings clear -c config.yaml`,
}

var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the pending list as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ context.Context, st *pending.Store) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st.GetAll())
		})
	},
}

var bookingsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a booking to the pending list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		txID, _ := flags.GetString("tx-id")
		propertyID, _ := flags.GetInt64("property-id")
		checkIn, _ := flags.GetInt64("check-in")
		checkOut, _ := flags.GetInt64("check-out")
		guest, _ := flags.GetString("guest")
		amount, _ := flags.GetFloat64("amount")

		booking := pending.Booking{
			TxID:         txID,
			PropertyID:   propertyID,
			CheckIn:      checkIn,
			CheckOut:     checkOut,
			GuestAddress: guest,
			TotalAmount:  amount,
			CreatedAt:    time.Now().UnixMilli(),
			Status:       pending.StatusPending,
		}

		return withStore(cmd, func(ctx context.Context, st *pending.Store) error {
			if err := st.Add(ctx, booking); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%d pending)\n", txID, len(st.GetAll()))
			return nil
		})
	},
}

var bookingsRemoveCmd = &cobra.Command{
	Use:   "remove <txId>",
	Short: "Remove a booking from the pending list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *pending.Store) error {
			if err := st.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%d pending)\n", args[0], len(st.GetAll()))
			return nil
		})
	},
}

var bookingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every booking from the pending list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *pending.Store) error {
			if err := st.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared pending list")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(bookingsCmd)
	bookingsCmd.AddCommand(bookingsListCmd, bookingsAddCmd, bookingsRemoveCmd, bookingsClearCmd)

	bookingsCmd.PersistentFlags().StringP("config", "c", "", "path to config file (required)")
	bookingsCmd.PersistentFlags().String("env-file", "", "dotenv file loaded before the config")
	_ = bookingsCmd.MarkPersistentFlagRequired("config")

	bookingsAddCmd.Flags().String("tx-id", "", "transaction id (required)")
	bookingsAddCmd.Flags().Int64("property-id", 0, "booked property id")
	bookingsAddCmd.Flags().Int64("check-in", 0, "check-in timestamp")
	bookingsAddCmd.Flags().Int64("check-out", 0, "check-out timestamp")
	bookingsAddCmd.Flags().String("guest", "", "guest address")
	bookingsAddCmd.Flags().Float64("amount", 0, "total amount in the smallest currency unit")
	_ = bookingsAddCmd.MarkFlagRequired("tx-id")
}

// withStore opens the configured backend, builds a store on it and runs fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *pending.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Backend.Type == config.BackendMemory {
		return errors.New("bookings commands need a persistent backend, got memory")
	}

	logger := newLogger(cfg.SlogLevel())
	return runWithStore(cmd.Context(), cfg, logger, fn)
}

func runWithStore(parent context.Context, cfg *config.Config, logger *slog.Logger, fn func(ctx context.Context, st *pending.Store) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, operationTimeout)
	defer cancel()

	backend, closeBackend, err := config.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer func() {
		if err := closeBackend(context.Background()); err != nil {
			logger.Warn("failed to close backend", "error", err)
		}
	}()

	st, err := pending.NewStore(ctx, backend, config.StoreOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	return fn(ctx, st)
}
