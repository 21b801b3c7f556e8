package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/decision"
	"shelfcast/internal/domain"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/training"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDecisions struct {
	rec  domain.DecisionRecord
	err  error
	last decision.Request
	hits int
}

func (s *stubDecisions) Decide(ctx context.Context, req decision.Request) (domain.DecisionRecord, error) {
	s.hits++
	s.last = req
	return s.rec, s.err
}

type stubSnapshots struct{ snap *ensemble.Snapshot }

func (s stubSnapshots) Current() *ensemble.Snapshot { return s.snap }

type stubReloader struct {
	snap *ensemble.Snapshot
	err  error
}

func (s stubReloader) Reload(ctx context.Context) (*ensemble.Snapshot, error) { return s.snap, s.err }

type stubTrainer struct {
	result training.Result
	err    error
}

func (s stubTrainer) TrainAll(ctx context.Context, now time.Time) (training.Result, error) {
	return s.result, s.err
}

type stubAdvisor struct {
	reply string
	err   error
	calls int
}

func (s *stubAdvisor) Suggest(ctx context.Context, rec domain.DecisionRecord) (string, error) {
	s.calls++
	return s.reply, s.err
}

func testSnapshot(t *testing.T) *ensemble.Snapshot {
	t.Helper()
	snap, err := ensemble.NewSnapshot(
		3,
		domain.ErrorScore{"lgbm": 2, "xgb": 2},
		domain.WeightSet{"lgbm": 0.5, "xgb": 0.5},
		domain.FeatureNames(),
		map[string]ensemble.Predictor{
			"lgbm": ensemble.PredictorFunc(func(domain.FeatureRow, time.Time) (float64, error) { return 1, nil }),
		},
	)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func newTestHandler(decisions DecisionService, snaps SnapshotReader) *Handler {
	h := New(trace.NewNoopTracerProvider().Tracer("handler-test"), decisions, snaps, zerolog.Nop())
	h.now = func() time.Time { return time.Date(2012, 11, 2, 15, 0, 0, 0, time.UTC) }
	return h
}

func serve(h *Handler, apiKey, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := gin.New()
	h.RegisterRoutes(r, apiKey)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
