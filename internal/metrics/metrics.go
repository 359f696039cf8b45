// Package metrics collects Prometheus metrics for the attendance pipeline.
// There is no scrape endpoint; the registry is written to a node_exporter
// textfile instead.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "attendance"

// frameLatencyBuckets covers downscaled frames on CPU detectors.
var frameLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Match outcome label values.
const (
	ResultMatched = "matched"
	ResultUnknown = "unknown"
)

// Manager owns a dedicated registry and the pipeline metrics.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	framesProcessed   prometheus.Counter
	facesDetected     prometheus.Counter
	matches           *prometheus.CounterVec
	recorded          prometheus.Counter
	duplicates        prometheus.Counter
	ledgerErrors      prometheus.Counter
	detectorErrors    prometheus.Counter
	frameLatency      prometheus.Histogram
	rosterIdentities  prometheus.Gauge
	rosterReferences  prometheus.Gauge
	lastFrameUnixTime prometheus.Gauge
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// NewManager creates a manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.framesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	})
	m.facesDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in frames",
	})
	m.matches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "matches_total",
		Help:      "Match outcomes by result",
	}, []string{"result"})
	m.recorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "recorded_total",
		Help:      "Attendance events written to the ledger",
	})
	m.duplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicates_total",
		Help:      "Matches of identities already recorded for the day",
	})
	m.ledgerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ledger_errors_total",
		Help:      "Ledger operations that failed after all attempts",
	})
	m.detectorErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "detector_errors_total",
		Help:      "Frames the face detector failed on",
	})
	m.frameLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "frame_processing_milliseconds",
		Help:      "Time from frame acquisition to annotations, in milliseconds",
		Buckets:   frameLatencyBuckets,
	})
	m.rosterIdentities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "roster_identities",
		Help:      "Identities in the loaded roster",
	})
	m.rosterReferences = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "roster_references",
		Help:      "Reference embeddings in the loaded roster",
	})
	m.lastFrameUnixTime = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "last_frame_timestamp_seconds",
		Help:      "Unix time of the last processed frame",
	})
}

// Registry returns the registry holding the metrics.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFrame records a processed frame with its face count and latency.
func (m *Manager) ObserveFrame(faces int, d time.Duration) {
	m.framesProcessed.Inc()
	m.facesDetected.Add(float64(faces))
	m.frameLatency.Observe(float64(d.Microseconds()) / 1000)
	m.lastFrameUnixTime.SetToCurrentTime()
}

// ObserveMatch records one match outcome.
func (m *Manager) ObserveMatch(matched bool) {
	if matched {
		m.matches.WithLabelValues(ResultMatched).Inc()
		return
	}
	m.matches.WithLabelValues(ResultUnknown).Inc()
}

// ObserveRecord records the outcome of a ledger RecordIfAbsent call.
func (m *Manager) ObserveRecord(recorded bool, err error) {
	switch {
	case err != nil:
		m.ledgerErrors.Inc()
	case recorded:
		m.recorded.Inc()
	default:
		m.duplicates.Inc()
	}
}

// DetectorError counts a frame the detector failed on.
func (m *Manager) DetectorError() {
	m.detectorErrors.Inc()
}

// SetRoster records the size of the loaded roster.
func (m *Manager) SetRoster(identities, references int) {
	m.rosterIdentities.Set(float64(identities))
	m.rosterReferences.Set(float64(references))
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Manager) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
