package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pendingtx"
	"github.com/jpalmerr/pendingtx/pending"
	"github.com/jpalmerr/pendingtx/storage"
)

func main() {
	// start mock status API (see mock_server.go)
	go StartMockTxServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// two contexts of one origin: the service and a simulated booking client
	origin := storage.NewMemoryOrigin()

	svc, err := pendingtx.New(
		pendingtx.WithBackend(origin.NewContext()),
		pendingtx.WithPort(8080),
		pendingtx.WithTitle("StackStay demo"),
		pendingtx.WithTracker(pendingtx.TrackerConfig{
			URLTemplate: "http://localhost:9999/tx/{{.TxID}}",
			Interval:    5 * time.Second,
		}),
		pendingtx.WithChangeCallback(func(list []pending.Booking) {
			slog.Info("pending list changed", "count", len(list))
		}),
	)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := pending.NewStore(ctx, origin.NewContext())
	if err != nil {
		slog.Error("failed to create client store", "error", err)
		os.Exit(1)
	}
	go submitBookings(ctx, client)

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   pendingtx demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   A simulated client books a stay every 10s.          ║")
	fmt.Println("  ║   Transactions settle 20-60s after submission.        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	if err := svc.Start(ctx); err != nil {
		slog.Error("pendingtx error", "error", err)
		os.Exit(1)
	}
}

// submitBookings adds a random booking through st every 10 seconds.
func submitBookings(ctx context.Context, st *pending.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		checkIn := time.Now().Add(time.Duration(1+rand.Intn(30)) * 24 * time.Hour)
		booking := pending.Booking{
			TxID:         "0x" + uuid.NewString(),
			PropertyID:   int64(1 + rand.Intn(20)),
			CheckIn:      checkIn.UnixMilli(),
			CheckOut:     checkIn.Add(time.Duration(1+rand.Intn(7)) * 24 * time.Hour).UnixMilli(),
			GuestAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
			TotalAmount:  float64(100+rand.Intn(900)) * 1_000_000,
			CreatedAt:    time.Now().UnixMilli(),
			Status:       pending.StatusPending,
		}
		if err := st.Add(ctx, booking); err != nil {
			slog.Error("failed to add booking", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
