package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/resilience"
)

type fakeSender struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
	calls  int
}

func (f *fakeSender) Publish(_ context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) (int64, error) {
	c.calls++
	return 3, c.err
}

func TestPublisherHook(t *testing.T) {
	sender := &fakeSender{}
	res := &pipeline.Result{
		RunID:     "run-1",
		Archive:   "a.zip",
		Records:   []store.Record{{Filename: "a.png"}, {Filename: "b.png"}},
		Stats:     pipeline.Stats{Processed: 2, Skipped: 1},
		StartedAt: time.Now(),
	}
	if err := NewPublisher(sender).Hook()(context.Background(), res); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if len(sender.events) != 1 {
		t.Fatalf("published %d events, want 1", len(sender.events))
	}
	e := sender.events[0]
	if e.Key != "run-1" {
		t.Errorf("key = %q", e.Key)
	}
	if v := e.Value.(SnapshotCommitted); v.Records != 2 || v.Skipped != 1 || v.Archive != "a.zip" {
		t.Errorf("event = %+v", v)
	}
}

func TestPublisherOpensBreaker(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	p := NewPublisher(sender)
	for i := 0; i < 5; i++ {
		if err := p.Publish(context.Background(), SnapshotCommitted{RunID: "r"}); err == nil {
			t.Fatal("publish succeeded against a dead broker")
		}
	}
	if sender.calls != 3 {
		t.Errorf("sender called %d times, want 3 before the breaker opened", sender.calls)
	}
	err := p.Publish(context.Background(), SnapshotCommitted{RunID: "r"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
}

func TestInvalidationHandler(t *testing.T) {
	inv := &countingInvalidator{}
	h := InvalidationHandler(inv)
	value, _ := json.Marshal(SnapshotCommitted{RunID: "r1"})
	if err := h(context.Background(), nil, value); err != nil {
		t.Fatal(err)
	}
	if err := h(context.Background(), nil, []byte("garbage")); err != nil {
		t.Errorf("malformed message returned %v", err)
	}
	if inv.calls != 1 {
		t.Errorf("invalidations = %d, want 1", inv.calls)
	}

	inv.err = errors.New("redis down")
	if err := h(context.Background(), nil, value); err == nil {
		t.Error("failed invalidation not reported")
	}
}

func TestInvalidateHook(t *testing.T) {
	inv := &countingInvalidator{}
	if err := InvalidateHook(inv)(context.Background(), &pipeline.Result{}); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 1 {
		t.Errorf("invalidations = %d", inv.calls)
	}
}
