package memstore

import (
	"iter"

	"github.com/ValentinKolb/bKV/lib/lockmgr"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	lockmgr.IKeyLocker
	records *xsync.MapOf[string, []byte]
}

// NewMemStore creates a new, empty in-memory store
func NewMemStore() store.IStore {
	return &storeImpl{
		IKeyLocker: lockmgr.NewKeyLocker(),
		records:    xsync.NewMapOf[string, []byte](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (*store.StoredObject, bool, error) {
	rec, ok := s.records.Load(key)
	if !ok {
		return nil, false, nil
	}
	obj, err := store.DecodeRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (s *storeImpl) Set(key string, obj *store.StoredObject) error {
	if obj == nil {
		return store.NewError(store.RetCInvalidOperation, "cannot store a nil object")
	}
	s.records.Store(key, store.EncodeRecord(obj))
	return nil
}

func (s *storeImpl) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.records.Range(func(key string, _ []byte) bool {
			return yield(key, nil)
		})
	}
}

func (s *storeImpl) Close() error {
	return nil
}
