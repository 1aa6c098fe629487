package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		documentsGeneratedTotal,
		generationDurationSeconds,
		documentDownloadsTotal,
		storageOpsTotal,
	)
}

var (
	documentsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_generated_total",
			Help: "Document generation attempts by status (completed/failed) and format.",
		},
		[]string{"status", "format"},
	)

	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_generation_duration_seconds",
			Help:    "End-to-end latency of a generation request.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120, 300},
		},
		[]string{"status"},
	)

	documentDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_downloads_total",
			Help: "Presigned download links issued, by download type.",
		},
		[]string{"type"},
	)

	storageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Object storage calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

func ObserveGeneration(status, format string, seconds float64) {
	documentsGeneratedTotal.WithLabelValues(norm(status), norm(format)).Inc()
	generationDurationSeconds.WithLabelValues(norm(status)).Observe(seconds)
}

func IncDocumentDownload(downloadType string) {
	documentDownloadsTotal.WithLabelValues(norm(downloadType)).Inc()
}

func IncStorageOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storageOpsTotal.WithLabelValues(norm(op), result).Inc()
}
