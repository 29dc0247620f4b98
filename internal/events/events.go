// Package events announces committed snapshots on Kafka and reacts to those
// announcements by dropping cached search results.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/resilience"
)

// SnapshotCommitted is published after a run replaces the snapshot.
type SnapshotCommitted struct {
	RunID       string    `json:"run_id"`
	Archive     string    `json:"archive"`
	Records     int       `json:"records"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	CommittedAt time.Time `json:"committed_at"`
}

// Sender publishes one event. *kafka.Producer implements it.
type Sender interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher sends SnapshotCommitted events through a circuit breaker.
type Publisher struct {
	sender  Sender
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(sender Sender) *Publisher {
	return &Publisher{
		sender: sender,
		breaker: resilience.NewCircuitBreaker("snapshot-events", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
		}),
		timeout: 5 * time.Second,
		logger:  slog.Default().With("component", "snapshot-publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, e SnapshotCommitted) error {
	err := p.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, p.timeout, "publish snapshot event", func(ctx context.Context) error {
			return p.sender.Publish(ctx, kafka.Event{Key: e.RunID, Value: e})
		})
	})
	if err != nil {
		return fmt.Errorf("publishing snapshot event for run %s: %w", e.RunID, err)
	}
	p.logger.Debug("snapshot event published", "run_id", e.RunID, "records", e.Records)
	return nil
}

// Hook publishes an event for every committed run. Register it with
// pipeline.OnCommit.
func (p *Publisher) Hook() pipeline.Hook {
	return func(ctx context.Context, res *pipeline.Result) error {
		return p.Publish(ctx, SnapshotCommitted{
			RunID:       res.RunID,
			Archive:     res.Archive,
			Records:     len(res.Records),
			Skipped:     res.Stats.Skipped,
			Failed:      res.Stats.Failed,
			CommittedAt: res.StartedAt.Add(res.Duration).UTC(),
		})
	}
}

// Invalidator is anything whose cached state goes stale when the snapshot
// changes. *search.QueryCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// InvalidateHook drops cached results directly after a commit, for
// deployments without a broker.
func InvalidateHook(inv Invalidator) pipeline.Hook {
	return func(ctx context.Context, _ *pipeline.Result) error {
		_, err := inv.Invalidate(ctx)
		return err
	}
}

// InvalidationHandler returns the Kafka consumer callback that invalidates
// inv for every SnapshotCommitted message. Malformed messages are logged and
// acknowledged; a failed invalidation is returned so the message is retried.
func InvalidationHandler(inv Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, _ []byte, value []byte) error {
		var e SnapshotCommitted
		if err := json.Unmarshal(value, &e); err != nil {
			logger.Error("malformed snapshot event", "error", err)
			return nil
		}
		n, err := inv.Invalidate(ctx)
		if err != nil {
			return fmt.Errorf("invalidating after run %s: %w", e.RunID, err)
		}
		logger.Info("cache invalidated", "run_id", e.RunID, "keys_deleted", n)
		return nil
	}
}
