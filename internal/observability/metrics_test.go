package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	c := NewCollector()
	c.ObserveRun("solver", "Optimal", 12, 5*time.Millisecond)
	c.ObserveRun("solver", "Optimal", 3, time.Millisecond)
	c.ObserveRun("goalSeek", "Converged", 4, time.Millisecond)

	if got := testutil.ToFloat64(c.runs.WithLabelValues("solver", "Optimal")); got != 2 {
		t.Fatalf("solver runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("goalSeek", "Converged")); got != 1 {
		t.Fatalf("goal seek runs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.duration); got != 2 {
		t.Fatalf("duration series = %d, want 2", got)
	}
}

func TestObserveFailureKinds(t *testing.T) {
	c := NewCollector()
	c.ObserveFailure("goalSeek", model.InvalidParams("bad"), 0)
	c.ObserveFailure("goalSeek", model.NonNumeric("A1", model.Text("x")), 0)
	c.ObserveFailure("goalSeek", errors.New("plain"), 0)

	for _, kind := range []string{"InvalidParams", "NonNumericCell", "Other"} {
		if got := testutil.ToFloat64(c.failures.WithLabelValues("goalSeek", kind)); got != 1 {
			t.Fatalf("failures{kind=%s} = %v, want 1", kind, got)
		}
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRun("solver", "Optimal", 1, time.Second)
	c.ObserveFailure("solver", errors.New("x"), time.Second)
	c.SetSessions(3)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.ObserveRun("simulation", "Completed", 1000, time.Second)
	c.SetSessions(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`whatif_tool_runs_total{status="Completed",tool="simulation"} 1`,
		"whatif_workbook_sessions 2",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
