package lockmgr

import "context"

// IKeyLocker defines the interface for key-set locking
type IKeyLocker interface {
	// Lock blocks until every key is held by the caller or ctx is done.
	// Duplicate keys are ignored. On error no key is held.
	Lock(ctx context.Context, keys []string) error

	// Unlock releases every key of a set previously passed to Lock
	Unlock(keys []string)
}
