// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paggo"

// Outcome label values
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeStorage    = "storage_error"
	OutcomeNoText     = "no_text"
	OutcomeFetch      = "fetch_error"
	OutcomeExtract    = "extract_error"
	OutcomeTimeout    = "timeout"
	OutcomeGone       = "record_gone"
	OutcomeNotFound   = "not_found"
)

var (
	// UploadsTotal counts upload attempts by outcome
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by outcome.",
	}, []string{"outcome"})

	// UploadBytes observes accepted upload sizes
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_size_bytes",
		Help:      "Size of accepted uploads.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})

	// EnrichmentsTotal counts finished enrichment runs by outcome
	EnrichmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichments_total",
		Help:      "Background text extraction runs by outcome.",
	}, []string{"outcome"})

	// EnrichmentDuration observes how long enrichment runs take
	EnrichmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enrichment_duration_seconds",
		Help:      "Duration of background text extraction runs.",
		Buckets:   prometheus.DefBuckets,
	})

	// DeletesTotal counts delete attempts by outcome
	DeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletes_total",
		Help:      "Delete attempts by outcome.",
	}, []string{"outcome"})
)
