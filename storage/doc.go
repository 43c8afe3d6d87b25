// Package storage provides durable key-value slots with change notification.
//
// A [Backend] is the persistence capability a pending-booking store is built
// on. It reads, writes and deletes string values by key, and reports changes
// made by other execution contexts that share the same storage.
//
// The package ships two implementations:
//
//   - [MemoryOrigin] and [MemoryContext]: an in-process origin shared by any
//     number of contexts, modelled on browser local storage and its storage
//     event
//   - [MongoBackend]: one MongoDB document per key, with change streams for
//     cross-process notification
//
// A context is never notified of its own writes. Callers that need to keep
// several readers in one context consistent pair a backend with an
// in-process signal (see the pending package).
package storage
