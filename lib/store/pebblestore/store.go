package pebblestore

import (
	"errors"
	"fmt"
	"iter"

	"github.com/ValentinKolb/bKV/lib/lockmgr"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

var (
	objectPrefix = []byte("o/")
	// first key after every key starting with objectPrefix
	objectUpperBound = []byte("o0")
)

type storeImpl struct {
	lockmgr.IKeyLocker
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the pebble database in dir
func NewPebbleStore(dir string) (store.IStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{Logger: pebbleLogger{}})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", dir, err)
	}
	Logger.Infof("opened pebble store at %s", dir)
	return &storeImpl{
		IKeyLocker: lockmgr.NewKeyLocker(),
		db:         db,
	}, nil
}

// Factory returns a store.Factory opening dir
func Factory(dir string) store.Factory {
	return func() (store.IStore, error) {
		return NewPebbleStore(dir)
	}
}

func objectKey(key string) []byte {
	b := make([]byte, 0, len(objectPrefix)+len(key))
	b = append(b, objectPrefix...)
	return append(b, key...)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (*store.StoredObject, bool, error) {
	rec, closer, err := s.db.Get(objectKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.NewError(store.RetCInternalError, err.Error())
	}
	// DecodeRecord copies everything it keeps, so the buffer can be released right after
	obj, err := store.DecodeRecord(rec)
	if cerr := closer.Close(); cerr != nil {
		Logger.Warningf("failed to release read buffer for %q: %v", key, cerr)
	}
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (s *storeImpl) Set(key string, obj *store.StoredObject) error {
	if obj == nil {
		return store.NewError(store.RetCInvalidOperation, "cannot store a nil object")
	}
	if err := s.db.Set(objectKey(key), store.EncodeRecord(obj), pebble.Sync); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return nil
}

func (s *storeImpl) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := s.db.NewIter(&pebble.IterOptions{
			LowerBound: objectPrefix,
			UpperBound: objectUpperBound,
		})
		defer func() {
			if err := it.Close(); err != nil {
				Logger.Warningf("failed to close iterator: %v", err)
			}
		}()

		for it.First(); it.Valid(); it.Next() {
			if !yield(string(it.Key()[len(objectPrefix):]), nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield("", store.NewError(store.RetCInternalError, err.Error()))
		}
	}
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// pebbleLogger routes pebble's own log output to the store logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	Logger.Panicf(format, args...)
}
