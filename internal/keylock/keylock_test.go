package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("acct")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if l.Len() != 0 {
		t.Fatalf("expected entries to be released, got %d", l.Len())
	}
}

func TestLockIndependentKeys(t *testing.T) {
	l := New()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}
