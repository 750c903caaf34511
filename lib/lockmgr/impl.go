package lockmgr

import (
	"context"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// keyLock is the lock of a single key. The channel holds one token while the key is locked.
// refs counts holders and waiters so idle entries can be dropped.
type keyLock struct {
	ch   chan struct{}
	refs int
}

type keyLockerImpl struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyLocker creates an in-process key locker
func NewKeyLocker() IKeyLocker {
	return &keyLockerImpl{
		locks: make(map[string]*keyLock),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.IKeyLocker)
// --------------------------------------------------------------------------

func (l *keyLockerImpl) Lock(ctx context.Context, keys []string) error {
	keys = sortedUnique(keys)

	for i, key := range keys {
		kl := l.ref(key)
		select {
		case kl.ch <- struct{}{}:
		case <-ctx.Done():
			l.unref(key)
			l.Unlock(keys[:i])
			return ctx.Err()
		}
	}
	return nil
}

func (l *keyLockerImpl) Unlock(keys []string) {
	for _, key := range sortedUnique(keys) {
		l.mu.Lock()
		kl, ok := l.locks[key]
		l.mu.Unlock()
		if !ok {
			Logger.Warningf("unlock of key %q that is not locked", key)
			continue
		}

		select {
		case <-kl.ch:
			l.unref(key)
		default:
			Logger.Warningf("unlock of key %q that is not locked", key)
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// ref returns the lock of key and registers the caller as holder or waiter
func (l *keyLockerImpl) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

// unref drops a reference and removes the entry once nobody holds or waits for it
func (l *keyLockerImpl) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		return
	}
	kl.refs--
	if kl.refs <= 0 {
		delete(l.locks, key)
	}
}
