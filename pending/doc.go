// Package pending keeps a list of bookings whose transactions have been
// submitted but not yet confirmed.
//
// The list is held in memory by a [Store] and mirrored to a durable slot of a
// [storage.Backend] as a JSON array. Two propagation paths keep stores
// consistent:
//
//   - Across contexts (processes, tabs): the backend reports writes made
//     elsewhere and the store replaces its state with the new payload.
//   - Within a context: stores sharing a [Bus] re-read the slot whenever any
//     of them mutates it, because backends do not report a context's own
//     writes back to it.
//
// Corrupt or foreign data in the slot is logged and ignored. The store never
// fails a caller because of it; at worst it shows no pending bookings.
//
// Concurrent writers in different contexts are not merged. Whichever write
// lands last in the slot wins.
package pending
