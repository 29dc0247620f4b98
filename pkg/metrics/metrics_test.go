package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOCR("processed", time.Second)
	m.CountSkipped(3)
	m.ObserveRun("committed", time.Second)
	m.ObserveSave(nil, 2)
	m.ObserveSearch("hit", "miss", time.Millisecond)
	m.CacheHit()
	m.CacheMiss()
}

func TestObserveHelpers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOCR("processed", 10*time.Millisecond)
	m.ObserveOCR("failed", 10*time.Millisecond)
	m.CountSkipped(2)
	m.ObserveSave(nil, 7)
	m.ObserveSave(errors.New("disk full"), 0)

	if got := testutil.ToFloat64(m.IngestEntriesTotal.WithLabelValues("processed")); got != 1 {
		t.Errorf("processed entries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IngestEntriesTotal.WithLabelValues("skipped")); got != 2 {
		t.Errorf("skipped entries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SnapshotRecords); got != 7 {
		t.Errorf("snapshot records = %v, want 7 (failed save must not reset it)", got)
	}
	if got := testutil.ToFloat64(m.SnapshotSavesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed saves = %v, want 1", got)
	}
}
