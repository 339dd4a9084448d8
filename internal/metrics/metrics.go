package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godrop_http_requests_total",
			Help: "Number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "godrop_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	UploadSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_upload_sessions_started_total",
		Help: "Chunked upload sessions created",
	})

	ChunksStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_upload_chunks_stored_total",
		Help: "Chunks moved into the chunk directory",
	})

	ChunkRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_upload_chunk_record_failures_total",
		Help: "Chunk metadata rows that could not be written after retries",
	})

	UploadsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godrop_uploads_completed_total",
			Help: "Finalized uploads by path and result",
		},
		[]string{"kind", "result"},
	)

	BytesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_upload_bytes_stored_total",
		Help: "Bytes written to object storage by finalized uploads",
	})

	SweptChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_swept_chunks_total",
		Help: "Orphaned chunk files removed by the sweep",
	})

	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godrop_thumbnails_total",
			Help: "Thumbnail jobs by result",
		},
		[]string{"result"},
	)

	OnlineConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "godrop_ws_connections",
		Help: "Open WebSocket connections in this process",
	})
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
