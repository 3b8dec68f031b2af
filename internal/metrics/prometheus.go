package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/logvault/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_messages_ingested_total",
		Help: "Total messages written into archives",
	}, []string{"archive"})

	IREventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_ir_events_decoded_total",
		Help: "Total IR stream events decoded during ingestion",
	}, []string{"stream"})

	SegmentsSealed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_segments_sealed_total",
		Help: "Total segments sealed",
	}, []string{"archive"})

	SegmentSealDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_segment_seal_duration_seconds",
		Help:    "Time to seal a segment",
		Buckets: prometheus.DefBuckets,
	}, []string{"archive"})

	DictionaryEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logvault_dictionary_entries",
		Help: "Entries per dictionary",
	}, []string{"archive", "dictionary"})

	// Search metrics
	SearchFilesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logvault_search_files_opened_total",
		Help: "Files opened during searches after segment pruning",
	})

	SearchMessagesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logvault_search_messages_scanned_total",
		Help: "Messages scanned during searches",
	})

	SearchMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logvault_search_matches_total",
		Help: "Messages emitted as search matches",
	})

	// Tiering metrics
	SegmentDemotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_segment_demotions_total",
		Help: "Sealed segments demoted to object storage",
	}, []string{"archive"})

	S3UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_s3_upload_duration_seconds",
		Help:    "S3 upload latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"archive"})

	S3UploadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_s3_upload_errors_total",
		Help: "S3 upload failures",
	}, []string{"archive"})

	S3DownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_s3_download_duration_seconds",
		Help:    "S3 download latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"archive"})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
