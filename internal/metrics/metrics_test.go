package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPenaltyOutcome(t *testing.T) {
	beforeApplied := testutil.ToFloat64(penaltiesApplied)
	beforePoints := testutil.ToFloat64(fundPointsCredited)
	beforeSettled := testutil.ToFloat64(penaltyOutcomes.WithLabelValues("already_settled"))

	RecordPenaltyOutcome("applied", 5)
	RecordPenaltyOutcome("already_settled", 5)

	if got := testutil.ToFloat64(penaltiesApplied) - beforeApplied; got != 1 {
		t.Errorf("penalties applied delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(fundPointsCredited) - beforePoints; got != 5 {
		t.Errorf("points credited delta = %v, want 5", got)
	}
	if got := testutil.ToFloat64(penaltyOutcomes.WithLabelValues("already_settled")) - beforeSettled; got != 1 {
		t.Errorf("settled delta = %v, want 1", got)
	}
}

func TestRecordReconciliation(t *testing.T) {
	before := testutil.ToFloat64(reconciliations.WithLabelValues("error"))
	RecordReconciliation(errors.New("boom"), 3*time.Millisecond)
	if got := testutil.ToFloat64(reconciliations.WithLabelValues("error")) - before; got != 1 {
		t.Errorf("error reconciliations delta = %v, want 1", got)
	}
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Post("/api/goals/{id}/complete", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Handle("/metrics", Handler())

	before := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/goals/{id}/complete", "409"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/goals/abc/complete", nil))
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/goals/{id}/complete", "409")) - before; got != 1 {
		t.Fatalf("request counter delta = %v, want 1", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goalpact_http_requests_total") {
		t.Fatalf("metrics endpoint missing collectors: %d", rec.Code)
	}
}
