package pebblestore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/bKV/lib/store"
	storetesting "github.com/ValentinKolb/bKV/lib/store/testing"
)

func TestPebbleStore(t *testing.T) {
	storetesting.RunStoreTests(t, "pebblestore", func(t *testing.T) store.IStore {
		s, err := NewPebbleStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		return s
	})
}

func TestPebbleStoreReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := s.Set(fmt.Sprintf("k%d", i), storetesting.SampleObject(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Factory(dir)()
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	count := 0
	for key, err := range s.Keys() {
		if err != nil {
			t.Fatal(err)
		}
		count++
		obj, found, err := s.Get(key)
		if err != nil || !found {
			t.Fatalf("Key %s lost after reopen: %v", key, err)
		}
		if !bytes.Equal(obj.Value, []byte("v"+key[1:])) {
			t.Errorf("Key %s has value %q after reopen", key, obj.Value)
		}
		if obj.PendingGrantCount() != 2 {
			t.Errorf("Key %s lost its grant history", key)
		}
	}
	if count != 10 {
		t.Errorf("Expected 10 keys after reopen, got %d", count)
	}
}
