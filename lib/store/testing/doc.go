// Package testing provides a conformance test suite for store.IStore implementations.
//
// Usage:
//
//	func TestMemStore(t *testing.T) {
//		storetesting.RunStoreTests(t, "memstore", func(t *testing.T) store.IStore {
//			return memstore.NewMemStore()
//		})
//	}
package testing
