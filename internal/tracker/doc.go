// Package tracker removes pending bookings once their transaction settles.
//
// This package is internal to pendingtx. A [Tracker] periodically takes a
// snapshot of the store, asks a transaction status API about every pending
// booking and calls Remove for each transaction the API reports in a
// terminal state. Requests run on a bounded worker pool.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with timeout and size limits
//   - [Tracker]: periodic checks over the store with a worker pool
//   - [Result]: outcome of checking one booking
//
// Users of the pendingtx library should not need to interact with this
// package directly. It is configured through [pendingtx.WithTracker].
package tracker
