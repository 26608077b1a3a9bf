// Package metrics exposes Prometheus metrics for reconciliation and webmention traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	blogapp "github.com/dfryer1193/webpress/blog/application"
	"github.com/dfryer1193/webpress/blog/domain"
	wmapp "github.com/dfryer1193/webpress/webmention/application"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webpress"

var (
	_ blogapp.Metrics       = (*Collector)(nil)
	_ wmapp.ReceiverMetrics = (*Collector)(nil)
	_ wmapp.SenderMetrics   = (*Collector)(nil)
)

// Collector records metrics into a Prometheus registry.
type Collector struct {
	reconcileDuration prometheus.Histogram
	posts             prometheus.Gauge
	pending           prometheus.Gauge
	loadFailures      prometheus.Gauge
	idAssignments     *prometheus.CounterVec
	received          *prometheus.CounterVec
	receiveLatency    prometheus.Histogram
	deliveries        *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of content directory reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		posts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "posts",
			Help:      "Posts with an id after the last reconciliation.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "posts_pending",
			Help:      "Files still waiting for an id.",
		}),
		loadFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "post_load_failures",
			Help:      "Files skipped by the last load because they could not be read or parsed.",
		}),
		idAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "id_assignments_total",
			Help:      "Id assignment attempts by result.",
		}, []string{"result"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webmentions_received_total",
			Help:      "Inbound webmentions by verification outcome.",
		}, []string{"outcome"}),
		receiveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webmention_verification_seconds",
			Help:      "Time spent verifying inbound webmentions.",
			Buckets:   prometheus.DefBuckets,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webmentions_sent_total",
			Help:      "Outbound webmention attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP responses by method and status code.",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		c.reconcileDuration,
		c.posts,
		c.pending,
		c.loadFailures,
		c.idAssignments,
		c.received,
		c.receiveLatency,
		c.deliveries,
		c.httpRequests,
	)

	return c
}

func (c *Collector) RecordReconcile(duration time.Duration, stats domain.StoreStats) {
	c.reconcileDuration.Observe(duration.Seconds())
	c.posts.Set(float64(stats.Posts))
	c.pending.Set(float64(stats.Pending))
	c.loadFailures.Set(float64(stats.LoadFailures))
}

func (c *Collector) RecordIDAssignment(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.idAssignments.WithLabelValues(result).Inc()
}

func (c *Collector) RecordReceive(outcome string, duration time.Duration) {
	c.received.WithLabelValues(outcome).Inc()
	c.receiveLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordDelivery(outcome string) {
	c.deliveries.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method string, statusCode int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
