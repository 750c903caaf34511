package testing

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/store"
)

// StoreFactory creates a fresh, empty store for one test
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the conformance suite for a store implementation
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("GetMissing", func(t *testing.T) {
			testGetMissing(t, factory(t))
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, factory(t))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory(t))
		})

		t.Run("KeysWhileWriting", func(t *testing.T) {
			testKeysWhileWriting(t, factory(t))
		})

		t.Run("Locking", func(t *testing.T) {
			testLocking(t, factory(t))
		})
	})
}

// SampleObject returns an object with value, certificate and grant history
func SampleObject(value string) *store.StoredObject {
	grant := cert.MultiGrant{
		Grants:          cert.Grants{"k": 3017},
		Initiator:       "initiator",
		Responder:       "responder",
		TransactionHash: []byte{1, 2, 3},
		Signature:       []byte{4, 5, 6},
	}
	obj := &store.StoredObject{
		Value:          []byte(value),
		ValueAvailable: true,
		Certificate:    cert.WriteCertificate{grant, grant, grant},
		GrantHistory:   store.GrantHistory{},
	}
	obj.AddPendingGrant(4123, store.PendingGrant{Grant: grant, IssuedAt: 1700000000000})
	obj.AddPendingGrant(5001, store.PendingGrant{Grant: grant, IssuedAt: 1700000000001})
	return obj
}

// --------------------------------------------------------------------------
// Individual Tests
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	obj := SampleObject("value")
	if err := s.Set("k", obj); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	got, found, err := s.Get("k")
	if err != nil || !found {
		t.Fatalf("Failed to get: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(obj, got) {
		t.Errorf("Stored object differs:\n got %#v\nwant %#v", got, obj)
	}

	// overwrite with a deleted state
	deleted := &store.StoredObject{Certificate: obj.Certificate, GrantHistory: store.GrantHistory{}}
	if err := s.Set("k", deleted); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}
	got, _, _ = s.Get("k")
	if got.ValueAvailable || got.Value != nil {
		t.Errorf("Expected no value after overwrite, got %q", got.Value)
	}

	// an empty value is not the same as no value
	empty := &store.StoredObject{Value: []byte{}, ValueAvailable: true, GrantHistory: store.GrantHistory{}}
	if err := s.Set("e", empty); err != nil {
		t.Fatalf("Failed to set empty value: %v", err)
	}
	got, _, _ = s.Get("e")
	if !got.ValueAvailable || got.Value == nil || len(got.Value) != 0 {
		t.Errorf("Expected empty available value, got %#v", got)
	}
}

func testGetMissing(t *testing.T, s store.IStore) {
	defer s.Close()

	obj, found, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found || obj != nil {
		t.Errorf("Expected missing key, got %#v", obj)
	}
}

func testCopySemantics(t *testing.T, s store.IStore) {
	defer s.Close()

	obj := SampleObject("value")
	if err := s.Set("k", obj); err != nil {
		t.Fatal(err)
	}
	obj.Value[0] = 'X'
	obj.AddPendingGrant(9000, store.PendingGrant{})

	got, _, _ := s.Get("k")
	if !bytes.Equal(got.Value, []byte("value")) {
		t.Errorf("Store shares the value buffer with the caller: %q", got.Value)
	}
	if got.PendingGrantCount() != 2 {
		t.Errorf("Store shares the grant history with the caller")
	}

	got.Value[0] = 'Y'
	again, _, _ := s.Get("k")
	if !bytes.Equal(again.Value, []byte("value")) {
		t.Errorf("Store shares the value buffer with readers: %q", again.Value)
	}
}

func testKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	want := []string{}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%03d", i)
		want = append(want, key)
		if err := s.Set(key, SampleObject(key)); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for key, err := range s.Keys() {
		if err != nil {
			t.Fatalf("Iteration failed: %v", err)
		}
		got = append(got, key)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("Keys returned %d keys, expected %d", len(got), len(want))
	}

	// stopping early must be possible
	n := 0
	for range s.Keys() {
		n++
		if n == 10 {
			break
		}
	}
	if n != 10 {
		t.Errorf("Expected to stop after 10 keys, got %d", n)
	}
}

func testKeysWhileWriting(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 20; i++ {
		if err := s.Set(fmt.Sprintf("key-%02d", i), SampleObject("v")); err != nil {
			t.Fatal(err)
		}
	}

	seen := 0
	for key, err := range s.Keys() {
		if err != nil {
			t.Fatalf("Iteration failed: %v", err)
		}
		seen++
		obj, found, err := s.Get(key)
		if err != nil || !found {
			t.Fatalf("Failed to get %s during iteration: %v", key, err)
		}
		obj.PruneHistory(100)
		if err := s.Set(key, obj); err != nil {
			t.Fatalf("Failed to set %s during iteration: %v", key, err)
		}
	}
	if seen < 20 {
		t.Errorf("Iteration saw %d of 20 keys", seen)
	}
}

func testLocking(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Lock(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	locked := make(chan struct{})
	go func() {
		defer wg.Done()
		if err := s.Lock(ctx, []string{"b"}); err != nil {
			t.Error(err)
			return
		}
		close(locked)
		s.Unlock([]string{"b"})
	}()

	select {
	case <-locked:
		t.Fatal("Key b locked twice")
	case <-time.After(30 * time.Millisecond):
	}

	s.Unlock([]string{"a", "b"})
	wg.Wait()
}
