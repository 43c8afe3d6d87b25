// Package pendingtx keeps an optimistic list of pending bookings consistent
// across every process and client that shares it.
//
// A booking is "pending" from the moment its on-chain transaction is
// submitted until the transaction settles. The list itself lives in package
// [pending]: a [pending.Store] mirrors it to a durable slot provided by a
// [storage.Backend], notifies subscribers after every change and follows
// writes made by other stores, whether in the same context or another one.
//
// This package wires a store into a runnable service: an HTTP API with a
// Server-Sent Events stream and an embedded dashboard, plus an optional
// tracker that removes bookings once a transaction status API reports them
// settled.
//
// # Quick Start
//
//	svc, err := pendingtx.New(
//	    pendingtx.WithPort(8080),
//	    pendingtx.WithTracker(pendingtx.TrackerConfig{
//	        URLTemplate: "https://api.hiro.so/extended/v1/tx/{{.TxID}}",
//	    }),
//	)
//	if err != nil {
//	    slog.Error("failed to create service", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	svc.Start(ctx) // blocks until context is cancelled
//
// Collaborators add bookings through [Service.Store] or the HTTP API:
//
//	svc.Store().Add(ctx, pending.Booking{TxID: txID, PropertyID: 7})
//
// # Backends
//
// Without [WithBackend] the service keeps the list in a private
// [storage.MemoryOrigin]. Several services sharing one origin, or one MongoDB
// collection through [storage.MongoBackend], see each other's changes.
//
// # Architecture
//
//   - pending: the store, its same-context signal and the slot codec
//   - storage: backend interface, in-memory origin and MongoDB backend
//   - internal/server: REST API, Server-Sent Events and dashboard
//   - internal/tracker: transaction status polling with a worker pool
//   - dashboard: embedded web UI assets
//   - config: YAML configuration for the command line tool
//
// The internal packages are not part of the public API and may change
// without notice.
package pendingtx
