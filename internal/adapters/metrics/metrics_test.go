package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.CountExport("csv")
	m.CountExport("csv")
	m.CountImport(3, 1)
	m.CountAuth("login_success")

	if got := testutil.ToFloat64(m.exports.WithLabelValues("csv")); got != 2 {
		t.Errorf("csv exports=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.importedRows); got != 3 {
		t.Errorf("imported=%v want 3", got)
	}
	if got := testutil.ToFloat64(m.discardedRows); got != 1 {
		t.Errorf("discarded=%v want 1", got)
	}
}

func TestHistograms(t *testing.T) {
	m := New()
	m.ObserveQuery("exec", 2*time.Millisecond)
	m.ObserveRequest("GET", "/members", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if n := testutil.CollectAndCount(m.queryDuration); n != 1 {
		t.Errorf("query series=%d want 1", n)
	}
	if n := testutil.CollectAndCount(m.requestDuration); n != 2 {
		t.Errorf("request series=%d want 2", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CountExport("json")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `congregation_exports_total{format="json"} 1`) {
		t.Errorf("missing export counter in output")
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.CountAuth("login_failed")
	if got := testutil.ToFloat64(b.authEvents.WithLabelValues("login_failed")); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}
