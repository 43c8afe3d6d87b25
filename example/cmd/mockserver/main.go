// Standalone mock transaction status API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pendingtx serve -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock transaction status API starting on :9999")
	fmt.Println("Transactions go pending → success 20-60s after their first query")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		settleAt = make(map[string]time.Time)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tx/{txId}", func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("txId")

		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		at, exists := settleAt[txID]
		if !exists {
			at = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			settleAt[txID] = at
		}
		mu.Unlock()

		status := "pending"
		if time.Now().After(at) {
			status = "success"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tx_id":     txID,
			"tx_status": status,
		})
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
