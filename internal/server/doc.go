// Package server provides the HTTP surface over a pending bookings store.
//
// This package is internal to pendingtx and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML page at "/"
//   - REST API: snapshot, add, remove and clear at "/api/pending"
//   - Server-Sent Events: the full list after every change at "/api/sse"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the pendingtx library should not need to interact with this
// package directly. The server is started automatically by [pendingtx.Service.Start].
package server
