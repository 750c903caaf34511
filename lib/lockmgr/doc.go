// Package lockmgr provides key-set locking for the local store.
//
// Every store access in the replication protocol locks the full set of keys it touches
// before reading and releases them together afterwards. The lock manager hands out one
// exclusive lock per key and always acquires the keys of a set in lexicographic order,
// so two overlapping key sets can never deadlock each other.
//
// Locks have no timeout. A holder that never unlocks stalls all later operations on its
// keys; callers bound the wait with the context passed to Lock instead.
//
// Usage:
//
//	locker := lockmgr.NewKeyLocker()
//	if err := locker.Lock(ctx, []string{"b", "a"}); err != nil {
//		return err
//	}
//	defer locker.Unlock([]string{"b", "a"})
package lockmgr
