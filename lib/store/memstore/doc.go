// Package memstore implements store.IStore in memory.
//
// Records are kept in encoded form in an xsync.MapOf, so every Get decodes a fresh copy
// and callers can never mutate stored state by accident. Nothing survives a restart;
// use pebblestore for persistence.
package memstore
