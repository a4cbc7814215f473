package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsEngineEvents(t *testing.T) {
	r := NewRegistry()
	r.ObserveBalance(inventory.MethodOutturn, 3*time.Millisecond)
	r.ObserveBalance(inventory.MethodVarietyString, time.Millisecond)
	r.ObserveBalance(inventory.MethodVarietyString, time.Millisecond)
	r.NegativeAggregate("O1|X|Rice|MI GREEN|30")
	r.ValidationRejected("insufficient_stock")
	r.MovementRecorded(inventory.MovementTypePalti)
	r.CacheLookup(true)
	r.CacheLookup(false)

	if got := testutil.ToFloat64(r.BalanceQueries.WithLabelValues(string(inventory.MethodVarietyString))); got != 2 {
		t.Fatalf("variety-string queries=%v", got)
	}
	if got := testutil.ToFloat64(r.NegativeAggregates); got != 1 {
		t.Fatalf("negative aggregates=%v", got)
	}
	if got := testutil.ToFloat64(r.ValidationRejects.WithLabelValues("insufficient_stock")); got != 1 {
		t.Fatalf("rejections=%v", got)
	}
	if got := testutil.ToFloat64(r.MovementsRecorded.WithLabelValues("palti")); got != 1 {
		t.Fatalf("movements=%v", got)
	}
}

func TestHandlerExposesMetricNames(t *testing.T) {
	r := NewRegistry()
	r.ValidationRejected("sale_after_palti")
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), `stock_validation_rejections_total{reason="sale_after_palti"} 1`) {
		t.Fatalf("metrics body missing rejection counter:\n%s", body)
	}
}
