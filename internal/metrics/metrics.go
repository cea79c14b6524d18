// Package metrics exposes Prometheus counters for the comment feed, chat and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio"

// Collector records application metrics on a Prometheus registry.
type Collector struct {
	feedEmissions  prometheus.Counter
	feedComments   prometheus.Gauge
	feedErrors     prometheus.Counter
	commentsPosted prometheus.Counter
	likeToggles    *prometheus.CounterVec
	chatReplies    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	activeStreams  prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedEmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_emissions_total",
			Help:      "Comment lists delivered to feed subscriptions.",
		}),
		feedComments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_comments",
			Help:      "Number of comments in the most recent feed emission.",
		}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Feed subscriptions ended by a store failure.",
		}),
		commentsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_posted_total",
			Help:      "Comments accepted by the store.",
		}),
		likeToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_toggles_total",
			Help:      "Like toggles applied, by resulting state.",
		}, []string{"state"}),
		chatReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Chat proxy replies by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open SSE and websocket comment streams.",
		}),
	}

	reg.MustRegister(
		c.feedEmissions,
		c.feedComments,
		c.feedErrors,
		c.commentsPosted,
		c.likeToggles,
		c.chatReplies,
		c.httpRequests,
		c.httpLatency,
		c.activeStreams,
	)

	return c
}

func (c *Collector) RecordFeedEmission(comments int) {
	c.feedEmissions.Inc()
	c.feedComments.Set(float64(comments))
}

func (c *Collector) RecordFeedError() {
	c.feedErrors.Inc()
}

func (c *Collector) RecordCommentPosted() {
	c.commentsPosted.Inc()
}

func (c *Collector) RecordLikeToggled(liked bool) {
	state := "unliked"
	if liked {
		state = "liked"
	}
	c.likeToggles.WithLabelValues(state).Inc()
}

func (c *Collector) RecordChatReply(outcome string) {
	c.chatReplies.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one finished request. route is the matched route template.
func (c *Collector) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// StreamOpened and StreamClosed track long-lived feed connections.
func (c *Collector) StreamOpened() {
	c.activeStreams.Inc()
}

func (c *Collector) StreamClosed() {
	c.activeStreams.Dec()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
