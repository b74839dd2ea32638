// Package store is the durable switch status store.
//
// Every accepted event is appended to the device_status table. The current
// status of a device is its row with the highest id. The store opens its
// SQLite pool lazily on first use and retries a failed open a bounded
// number of times with a fixed delay; concurrent first callers share one
// attempt sequence. When every attempt fails the call returns
// ErrUnavailable and the next call tries again from scratch.
//
// Callers treat the store as best effort: the hub logs store errors and
// keeps broadcasting.
package store
