package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncCreated()
	m.IncCreated()
	m.IncCreateFailure(ReasonDuplicate)
	m.IncPublished()
	m.IncConsumed()

	if got := testutil.ToFloat64(m.PatientsCreated); got != 2 {
		t.Errorf("PatientsCreated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CreateFailures.WithLabelValues(ReasonDuplicate)); got != 1 {
		t.Errorf("CreateFailures[duplicate] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsPublished); got != 1 {
		t.Errorf("EventsPublished = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsConsumed); got != 1 {
		t.Errorf("EventsConsumed = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncCreated()
	m.IncCreateFailure(ReasonValidation)
	m.IncPublished()
	m.IncConsumed()
}

func TestMiddleware_RecordsHTTPErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/patients/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patients/abc", nil))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "patient_service_http_request_duration_seconds" {
			continue
		}
		if len(mf.GetMetric()) != 1 {
			t.Fatalf("expected one series, got %d", len(mf.GetMetric()))
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
	}
	if labels["route"] != "/patients/:id" || labels["status"] != "404" || labels["method"] != http.MethodGet {
		t.Errorf("unexpected labels: %v", labels)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncCreated()

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "patient_service_patients_created_total 1") {
		t.Errorf("expected patients_created_total in output, got:\n%s", rec.Body.String())
	}
}
