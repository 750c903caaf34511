// Package store provides the local replica store used by the replication protocol.
//
// Every peer keeps a full replica. For each key the store holds a StoredObject: the
// current value, whether a value is available (a deleted key keeps its certificate but
// has no value), the write certificate that authorized the current state and the history
// of pending grants this peer issued but that were not committed yet.
//
// The package focuses on:
//   - A unified interface (IStore) over different backends
//   - Key-set locking (every access sequence locks the keys it touches)
//   - A binary record codec so backends store objects as opaque bytes
//
// Implementations:
//
//	- Memory Store (memstore): records in a lock-free xsync map. Nothing survives a
//	  restart. Available in "github.com/ValentinKolb/bKV/lib/store/memstore".
//
//	- Pebble Store (pebblestore): records in an embedded pebble database, so a restarted
//	  peer keeps its certificates and pending grants.
//	  Available in "github.com/ValentinKolb/bKV/lib/store/pebblestore".
//
// Both backends return copies: mutating an object returned by Get has no effect until it
// is passed to Set.
package store
