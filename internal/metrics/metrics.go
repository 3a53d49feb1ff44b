package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"charagen/internal/domain"
)

const namespace = "charagen"

// Registry owns every collector of the service. Collectors live on a private
// registry rather than prometheus.DefaultRegisterer so tests can build fresh ones.
type Registry struct {
	reg *prometheus.Registry

	jobsSubmitted prometheus.Counter
	jobsRejected  *prometheus.CounterVec
	pollAttempts  prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	creditChecks  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	sqlDuration   *prometheus.HistogramVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_jobs_submitted_total",
			Help:      "Jobs accepted by the inference provider.",
		}),
		jobsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_submissions_rejected_total",
			Help:      "Submissions that never produced a job, by failure kind.",
		}, []string{"kind"}),
		pollAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_poll_attempts_total",
			Help:      "Status queries sent to the inference provider.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		creditChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_checks_total",
			Help:      "Credit gate decisions.",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sqlDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sql_query_duration_seconds",
			Help:      "Statement latency by --sql marker.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"marker", "outcome"}),
	}
}

func (r *Registry) JobSubmitted() { r.jobsSubmitted.Inc() }

func (r *Registry) SubmissionRejected(kind domain.ErrorKind) {
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	r.jobsRejected.WithLabelValues(label).Inc()
}

func (r *Registry) PollAttempt() { r.pollAttempts.Inc() }

func (r *Registry) JobFinished(status domain.JobStatus) {
	r.jobsFinished.WithLabelValues(string(status)).Inc()
}

// CreditCheck counts one gate decision: "privileged", "reserved" or "denied".
func (r *Registry) CreditCheck(outcome string) {
	r.creditChecks.WithLabelValues(outcome).Inc()
}

// SQLQuery observes one statement. Markers are fixed per call site so the
// label set stays small.
func (r *Registry) SQLQuery(marker string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.sqlDuration.WithLabelValues(marker, outcome).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware records request counts and latency labelled with the chi route
// pattern, so path parameters do not explode label cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
