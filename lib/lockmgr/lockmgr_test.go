package lockmgr

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSortedUnique tests key normalization
func TestSortedUnique(t *testing.T) {
	in := []string{"c", "a", "b", "a", "c"}
	if out := sortedUnique(in); !reflect.DeepEqual(out, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected result %v", out)
	}
	if !reflect.DeepEqual(in, []string{"c", "a", "b", "a", "c"}) {
		t.Errorf("Input was modified: %v", in)
	}
}

// TestLockExcludes tests that an overlapping key set waits for the holder
func TestLockExcludes(t *testing.T) {
	locker := NewKeyLocker()
	ctx := context.Background()

	if err := locker.Lock(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := locker.Lock(ctx, []string{"b", "c"}); err != nil {
			t.Error(err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Overlapping key set acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	// a disjoint set is not blocked
	disjoint, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := locker.Lock(disjoint, []string{"d"}); err != nil {
		t.Fatalf("Disjoint key set blocked: %v", err)
	}
	locker.Unlock([]string{"d"})

	locker.Unlock([]string{"b", "a"})
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Waiter was not woken up")
	}
	locker.Unlock([]string{"b", "c"})
}

// TestLockContext tests that a cancelled wait releases the keys already taken
func TestLockContext(t *testing.T) {
	locker := NewKeyLocker()
	if err := locker.Lock(context.Background(), []string{"b"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := locker.Lock(ctx, []string{"a", "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	// "a" must be free again
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := locker.Lock(ctx2, []string{"a"}); err != nil {
		t.Fatalf("Key a was not released: %v", err)
	}
	locker.Unlock([]string{"a"})
	locker.Unlock([]string{"b"})

	impl := locker.(*keyLockerImpl)
	if len(impl.locks) != 0 {
		t.Errorf("Expected no lock entries, got %d", len(impl.locks))
	}
}

// TestLockNoDeadlock tests many goroutines locking overlapping sets given in different orders
func TestLockNoDeadlock(t *testing.T) {
	locker := NewKeyLocker()
	sets := [][]string{{"a", "b", "c"}, {"c", "b"}, {"b", "a"}, {"c", "a", "a"}}
	holders := map[string]*int32{"a": new(int32), "b": new(int32), "c": new(int32)}
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unique := sortedUnique(keys)
			for j := 0; j < 50; j++ {
				if err := locker.Lock(context.Background(), keys); err != nil {
					t.Error(err)
					return
				}
				for _, k := range unique {
					if n := atomic.AddInt32(holders[k], 1); n != 1 {
						t.Errorf("Key %s held by %d goroutines", k, n)
					}
				}
				atomic.AddInt64(&counter, 1)
				for _, k := range unique {
					atomic.AddInt32(holders[k], -1)
				}
				locker.Unlock(keys)
			}
		}(sets[i%len(sets)])
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Deadlock detected")
	}
	if counter != 32*50 {
		t.Errorf("Expected %d critical sections, got %d", 32*50, counter)
	}
}
