package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// StartMockTxServer runs a mock transaction status API.
//
// GET /tx/{txId} reports "pending" until the transaction settles 20-60
// seconds after it was first queried, then "success" or, one time in five,
// "abort_by_response". Call this in a goroutine before starting the tracker.
func StartMockTxServer(addr string) {
	var (
		settleAt = make(map[string]time.Time)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tx/{txId}", func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("txId")

		// simulate small latency variance
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
			if rand.Intn(5) == 0 {
				status = "abort_by_response"
			}
			slog.Info("transaction settled", "tx_id", txID, "status", status)
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]string{
			"tx_id":     txID,
			"tx_status": status,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
