package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	if New() == nil {
		t.Error("New() returned nil")
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.RecordCacheLookup("patient", true)

	if got := testutil.ToFloat64(m2.cacheLookups.WithLabelValues("patient", "hit")); got != 0 {
		t.Errorf("instances share collectors: got %v", got)
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordCacheLookup(t *testing.T) {
	m := New()
	m.RecordCacheLookup("patient", true)
	m.RecordCacheLookup("patient", true)
	m.RecordCacheLookup("patient", false)

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("patient", "hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("patient", "miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestStartFetch(t *testing.T) {
	m := New()

	done := m.StartFetch("analytics", "summary")
	if got := testutil.ToFloat64(m.inflight.WithLabelValues("analytics")); got != 1 {
		t.Errorf("inflight = %v, want 1", got)
	}

	done(OutcomeFailure)
	if got := testutil.ToFloat64(m.inflight.WithLabelValues("analytics")); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.fetches.WithLabelValues("analytics", "summary", OutcomeFailure)); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.fetchDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestRecordSignal(t *testing.T) {
	m := New()
	m.RecordSignal("chat", "analytics")

	if got := testutil.ToFloat64(m.signals.WithLabelValues("chat", "analytics")); got != 1 {
		t.Errorf("signals = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSignal("chat", "analytics")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `carecache_signals_total{from="chat",to="analytics"} 1`) {
		t.Errorf("signal counter missing from output:\n%s", rec.Body.String())
	}
}
