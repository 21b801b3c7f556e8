package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordDecision("UNDERSTOCK", "WEEK", false, 15*time.Millisecond)
	r.RecordDecision("UNDERSTOCK", "WEEK", true, time.Millisecond)
	r.RecordDecision("INVALID_FEATURE_ROW", "WEEK", false, time.Millisecond)
	r.RecordPublishFailure()
	r.RecordReload("ok")

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("UNDERSTOCK", "WEEK")); got != 2 {
		t.Fatalf("expected 2 understock decisions, got %v", got)
	}
	if got := testutil.ToFloat64(r.publishFailures); got != 1 {
		t.Fatalf("expected 1 publish failure, got %v", got)
	}
	if got := testutil.CollectAndCount(r.decisionLatency); got != 2 {
		t.Fatalf("expected cached and uncached latency series, got %d", got)
	}
}

func TestRecordSnapshotReplacesWeights(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSnapshot(1, map[string]float64{"lgbm": 0.5, "xgb": 0.3, "prophet": 0.2})
	r.RecordSnapshot(2, map[string]float64{"lgbm": 0.6, "xgb": 0.4})

	expected := `
# HELP shelfcast_ensemble_weight Blending weight per model in the installed snapshot.
# TYPE shelfcast_ensemble_weight gauge
shelfcast_ensemble_weight{model="lgbm"} 0.6
shelfcast_ensemble_weight{model="xgb"} 0.4
`
	if err := testutil.CollectAndCompare(r.ensembleWeight, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected weight gauges: %v", err)
	}
	if got := testutil.ToFloat64(r.ensembleVersion); got != 2 {
		t.Fatalf("expected version 2, got %v", got)
	}
}

func TestNewOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
