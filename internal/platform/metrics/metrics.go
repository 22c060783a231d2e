// Package metrics holds the Prometheus collectors of the patient service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patient_service"

// Failure reasons recorded by CreateFailures.
const (
	ReasonValidation = "validation"
	ReasonDuplicate  = "duplicate_email"
	ReasonRepository = "repository"
	ReasonPublish    = "publish"
)

type Metrics struct {
	PatientsCreated  prometheus.Counter
	CreateFailures   *prometheus.CounterVec
	EventsPublished  prometheus.Counter
	EventsConsumed   prometheus.Counter
	RequestDurations *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PatientsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_created_total",
			Help:      "Total number of patients registered",
		}),
		CreateFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patient_create_failures_total",
			Help:      "Failed patient registrations by reason",
		}, []string{"reason"}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "patient.created events handed to the publisher",
		}),
		EventsConsumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "patient.created events processed by the notification consumer",
		}),
		RequestDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// Middleware observes request latency per route. Errors returned by the
// handler are rendered after this middleware, so their status is read from
// the *echo.HTTPError itself.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			m.RequestDurations.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) IncCreated() {
	if m == nil {
		return
	}
	m.PatientsCreated.Inc()
}

func (m *Metrics) IncCreateFailure(reason string) {
	if m == nil {
		return
	}
	m.CreateFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncPublished() {
	if m == nil {
		return
	}
	m.EventsPublished.Inc()
}

func (m *Metrics) IncConsumed() {
	if m == nil {
		return
	}
	m.EventsConsumed.Inc()
}
