package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(limit, window)
	l.now = clock.now
	return l, clock
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("client"); !ok {
			t.Fatalf("request %d denied", i)
		}
	}
	ok, wait := l.Allow("client")
	if ok {
		t.Fatal("fourth request allowed")
	}
	if wait <= 0 || wait > 20*time.Second {
		t.Errorf("retry after = %v, want within one refill interval", wait)
	}

	clock.advance(21 * time.Second)
	if ok, _ := l.Allow("client"); !ok {
		t.Error("request denied after refill")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("a denied")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Error("b denied because of a")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("a allowed twice")
	}
	l.Reset("a")
	if ok, _ := l.Allow("a"); !ok {
		t.Error("a denied after reset")
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("x"); !ok {
			t.Fatal("disabled limiter denied a request")
		}
	}
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	l.Allow("old")
	clock.advance(3 * time.Minute)
	l.Allow("new")
	l.Prune()
	if n := l.Len(); n != 1 {
		t.Errorf("tracked keys = %d, want 1", n)
	}
}
