package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageLikes counts likes recorded on pages.
	PageLikes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roamio_page_likes_total",
		Help: "Total number of page likes",
	})

	// PageViews counts page detail views.
	PageViews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roamio_page_views_total",
		Help: "Total number of page views",
	})

	// CommentsCreated counts created comments by kind (top_level, reply).
	CommentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamio_comments_created_total",
		Help: "Total number of comments created",
	}, []string{"kind"})

	// MediaUploads counts uploads by kind (image, video, avatar) and result.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamio_media_uploads_total",
		Help: "Total number of media uploads",
	}, []string{"kind", "result"})

	// EmailsSent counts verification emails by type and result.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamio_emails_sent_total",
		Help: "Total number of verification emails sent",
	}, []string{"type", "result"})

	// ExternalCallLatency records latency of calls to remote collaborators.
	ExternalCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roamio_external_call_latency_seconds",
		Help:    "Latency of calls to external services in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})

	// AsyncOperations counts background operations by name and result.
	AsyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamio_async_operations_total",
		Help: "Total number of background operations",
	}, []string{"operation", "result"})
)

// TrackExternal returns a function that records the call latency when invoked (e.g. defer).
func TrackExternal(service, operation string) func() {
	start := time.Now()
	return func() {
		ExternalCallLatency.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
	}
}

// ResultLabel maps an error to the "result" label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
