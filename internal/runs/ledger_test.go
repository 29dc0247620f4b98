package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/postgres"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:   uuid.NewString(),
		Archive: "batch.zip",
		Status:  pipeline.StatusCommitted,
		Items: []pipeline.ItemResult{
			{Index: 0, Name: "a.png", Record: &store.Record{Filename: "a.png", Text: "hello"}},
			{Index: 1, Name: "b.png", Err: fmt.Errorf("%w: engine crashed", apperrors.ErrOCRFailure)},
		},
		Stats:     pipeline.Stats{Processed: 1, Skipped: 2, Failed: 1},
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func TestFromResult(t *testing.T) {
	res := sampleResult()
	run := FromResult(res)
	if run.ID != res.RunID || run.Status != "committed" || run.DurationMs != 1500 {
		t.Errorf("run = %+v", run)
	}
	if run.Processed != 1 || run.Skipped != 2 || run.Failed != 1 {
		t.Errorf("counts = %d/%d/%d", run.Processed, run.Skipped, run.Failed)
	}
	if len(run.Failures) != 1 || run.Failures[0].Name != "b.png" || run.Failures[0].Index != 1 {
		t.Errorf("failures = %+v", run.Failures)
	}
	if run.Error != "" {
		t.Errorf("error = %q, want empty", run.Error)
	}

	res.Err = errors.New("persistence failed: disk full")
	if got := FromResult(res).Error; got != res.Err.Error() {
		t.Errorf("error = %q", got)
	}
}

func TestLedgerAgainstDatabase(t *testing.T) {
	host := os.Getenv("ITS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("ITS_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	db, err := postgres.New(cfg)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	l := NewLedger(db)
	if err := l.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	res := sampleResult()
	if err := l.Hook()(ctx, res); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := l.Get(ctx, res.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Archive != "batch.zip" || len(got.Failures) != 1 || got.Failures[0].Name != "b.png" {
		t.Errorf("run = %+v", got)
	}
	list, err := l.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, r := range list {
		found = found || r.ID == res.RunID
	}
	if !found {
		t.Errorf("run %s missing from list", res.RunID)
	}
}
