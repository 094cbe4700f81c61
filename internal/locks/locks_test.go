package locks

import (
	"sync"
	"testing"
	"time"
)

func TestMutualExclusion(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire([]string{"room:gym"})
			defer release()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50 (lost updates)", counter)
	}
}

func TestMultiKeyOppositeOrderNoDeadlock(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				release := m.Acquire([]string{"a", "b"})
				release()
			}()
			go func() {
				defer wg.Done()
				release := m.Acquire([]string{"b", "a"})
				release()
			}()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock: opposite-order acquisitions never finished")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager()
	release := m.Acquire([]string{"k"})
	release()
	release() // second call must not unlock someone else's mutex

	release2 := m.Acquire([]string{"k"})
	release2()
}

func TestEmptyAndDuplicateKeys(t *testing.T) {
	m := NewManager()
	release := m.Acquire([]string{"x", "", "x"})
	release()
	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock table has %d entries after release, want 0", n)
	}
}

func TestDisjointKeysDoNotBlock(t *testing.T) {
	m := NewManager()
	releaseA := m.Acquire([]string{"a"})
	defer releaseA()

	acquired := make(chan struct{})
	go func() {
		releaseB := m.Acquire([]string{"b"})
		releaseB()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("disjoint key acquisition blocked")
	}
}
