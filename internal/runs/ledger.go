// Package runs keeps a PostgreSQL ledger of ingestion runs and the entries
// that failed in each.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
    id          UUID PRIMARY KEY,
    archive     TEXT NOT NULL,
    status      TEXT NOT NULL,
    processed   INTEGER NOT NULL,
    skipped     INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS ingestion_failures (
    run_id      UUID NOT NULL REFERENCES ingestion_runs(id) ON DELETE CASCADE,
    entry_index INTEGER NOT NULL,
    entry_name  TEXT NOT NULL,
    error       TEXT NOT NULL,
    PRIMARY KEY (run_id, entry_index)
);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_started_at ON ingestion_runs (started_at DESC);
`

// Run is one row of the ledger.
type Run struct {
	ID         string    `json:"id"`
	Archive    string    `json:"archive"`
	Status     string    `json:"status"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Failures   []Failure `json:"failures,omitempty"`
}

type Failure struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// FromResult converts a finished pipeline run into a ledger row.
func FromResult(res *pipeline.Result) Run {
	run := Run{
		ID:         res.RunID,
		Archive:    res.Archive,
		Status:     string(res.Status),
		Processed:  res.Stats.Processed,
		Skipped:    res.Stats.Skipped,
		Failed:     res.Stats.Failed,
		StartedAt:  res.StartedAt.UTC(),
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	for _, f := range res.Failures() {
		run.Failures = append(run.Failures, Failure{Index: f.Index, Name: f.Name, Error: f.Err.Error()})
	}
	return run
}

// Ledger writes runs through a circuit breaker so an unreachable database
// costs one fast failure per run instead of a connect timeout.
type Ledger struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewLedger(db *postgres.Client) *Ledger {
	return &Ledger{
		db: db,
		breaker: resilience.NewCircuitBreaker("run-ledger", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
		}),
		logger: slog.Default().With("component", "run-ledger"),
	}
}

// Migrate creates the ledger tables if they do not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating run ledger schema: %w", err)
	}
	return nil
}

// Hook records every finished run. Register it with pipeline.OnFinish.
func (l *Ledger) Hook() pipeline.Hook {
	return func(ctx context.Context, res *pipeline.Result) error {
		return l.Record(ctx, FromResult(res))
	}
}

func (l *Ledger) Record(ctx context.Context, run Run) error {
	return l.breaker.Execute(func() error {
		return l.db.InTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ingestion_runs (id, archive, status, processed, skipped, failed, error, started_at, duration_ms)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				run.ID, run.Archive, run.Status, run.Processed, run.Skipped, run.Failed, run.Error, run.StartedAt, run.DurationMs,
			)
			if err != nil {
				return fmt.Errorf("inserting run %s: %w", run.ID, err)
			}
			for _, f := range run.Failures {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO ingestion_failures (run_id, entry_index, entry_name, error) VALUES ($1, $2, $3, $4)`,
					run.ID, f.Index, f.Name, f.Error,
				); err != nil {
					return fmt.Errorf("inserting failure %s#%d: %w", run.ID, f.Index, err)
				}
			}
			l.logger.Debug("run recorded", "run_id", run.ID, "status", run.Status, "failures", len(run.Failures))
			return nil
		})
	})
}

// List returns the most recent runs, newest first, without their failures.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]Run, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT id, archive, status, processed, skipped, failed, error, started_at, duration_ms
		 FROM ingestion_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Archive, &r.Status, &r.Processed, &r.Skipped, &r.Failed, &r.Error, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Get returns one run with its failures.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT id, archive, status, processed, skipped, failed, error, started_at, duration_ms
		 FROM ingestion_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.Archive, &r.Status, &r.Processed, &r.Skipped, &r.Failed, &r.Error, &r.StartedAt, &r.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}

	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT entry_index, entry_name, error FROM ingestion_failures WHERE run_id = $1 ORDER BY entry_index`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching failures of run %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Index, &f.Name, &f.Error); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		r.Failures = append(r.Failures, f)
	}
	return &r, rows.Err()
}

// BreakerState reports whether ledger writes are currently short-circuited.
func (l *Ledger) BreakerState() resilience.State {
	return l.breaker.State()
}
