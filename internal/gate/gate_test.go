package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// held reports how many callers hold or wait on key.
func held(g *Gate, key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e := g.locks[key]; e != nil {
		return e.refs
	}
	return 0
}

func TestGate_SerializesSameKey(t *testing.T) {
	g := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := g.Lock("room")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("want at most one holder, saw %d", maxInside)
	}
	if n := held(g, "room"); n != 0 {
		t.Fatalf("lock entry leaked: refs=%d", n)
	}
}

func TestGate_DifferentKeysDoNotBlock(t *testing.T) {
	g := New()
	unlockA := g.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := g.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
}

func TestGate_UnlockIsIdempotent(t *testing.T) {
	g := New()
	unlock := g.Lock("k")
	unlock()
	unlock()

	relock := g.Lock("k")
	relock()
	if n := held(g, "k"); n != 0 {
		t.Fatalf("refs=%d after unlock", n)
	}
}
