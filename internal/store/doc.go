// Package store implements the Instrument Store.
//
// The store is an in-memory map of symbol to instrument state. It performs its
// own locking: snapshots and per-symbol updates are safe to call concurrently
// without any external synchronization.
package store
