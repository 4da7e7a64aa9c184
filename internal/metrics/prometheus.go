package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tour_ingestion_duration_seconds",
			Help:    "End-to-end ingestion duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tour_ingestions_total",
			Help: "Total ingestion runs by terminal status",
		},
		[]string{"status"},
	)

	ScenesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tour_scenes_written_total",
			Help: "Total survey nodes written by the ingestion pipeline",
		},
	)

	FloorsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tour_floors_created_total",
			Help: "Total floor registry entries created",
		},
	)

	IngestionWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tour_ingestion_warnings_total",
			Help: "Total partial-match and coordinate warnings emitted",
		},
	)

	UploadRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tour_upload_retries_total",
			Help: "Total retried storage-sync invocations",
		},
	)
)

func Init() {
	prometheus.MustRegister(IngestionDuration)
	prometheus.MustRegister(IngestionsTotal)
	prometheus.MustRegister(ScenesWritten)
	prometheus.MustRegister(FloorsCreated)
	prometheus.MustRegister(IngestionWarnings)
	prometheus.MustRegister(UploadRetries)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
