// Package metrics provides the Prometheus and OpenTelemetry implementations
// of the engine's observability contracts.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.Recorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run metrics
	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec
	runDuplicatesFound *prometheus.CounterVec
	runRecordsMerged   *prometheus.CounterVec

	// Partition metrics
	partitionCounter     *prometheus.CounterVec
	recordsScannedTotal  *prometheus.CounterVec

	// Group metrics
	groupCounter   *prometheus.CounterVec
	groupSizeHist  *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
// The namespace is prepended to every metric name.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of dedupe run executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"object_type", "status", "dry_run"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_status_total",
			Help:      "Total number of dedupe run executions by status.",
		}, []string{"object_type", "status"}),
		runDuplicatesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_duplicates_found_total",
			Help:      "Total duplicate records detected across runs.",
		}, []string{"object_type"}),
		runRecordsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_records_merged_total",
			Help:      "Total duplicate records merged into masters across runs.",
		}, []string{"object_type"}),
		partitionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_absorbed_total",
			Help:      "Total record partitions absorbed by run.",
		}, []string{"object_type"}),
		recordsScannedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_scanned_total",
			Help:      "Total source records scanned across runs.",
		}, []string{"object_type"}),
		groupCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_total",
			Help:      "Total duplicate groups by merge outcome.",
		}, []string{"object_type", "phase"}),
		groupSizeHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_size_records",
			Help:      "Distribution of duplicate group sizes.",
			Buckets:   []float64{2, 3, 5, 10, 25, 50, 100},
		}, []string{"object_type"}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.runDuplicatesFound)
	registry.MustRegister(r.runRecordsMerged)
	registry.MustRegister(r.partitionCounter)
	registry.MustRegister(r.recordsScannedTotal)
	registry.MustRegister(r.groupCounter)
	registry.MustRegister(r.groupSizeHist)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of a run.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, result *model.RunResult) {
	r.runStatusCounter.WithLabelValues(result.ObjectType, string(result.Status)).Inc()
	logger.Debugf("Metrics: run '%s' started.", result.ID)
}

// RecordRunEnd records a terminal run with its duration and outcome.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, result *model.RunResult) {
	if result.EndTime == nil {
		return
	}
	duration := result.EndTime.Sub(result.StartTime).Seconds()

	r.runDurationSeconds.WithLabelValues(
		result.ObjectType,
		string(result.Status),
		boolLabel(result.IsDryRun),
	).Observe(duration)
	r.runStatusCounter.WithLabelValues(result.ObjectType, string(result.Status)).Inc()
	r.runDuplicatesFound.WithLabelValues(result.ObjectType).Add(float64(result.DuplicatesFound))
	r.runRecordsMerged.WithLabelValues(result.ObjectType).Add(float64(result.RecordsMerged))

	logger.Debugf("Metrics: run '%s' ended. Duration: %.3fs", result.ID, duration)
}

// RecordPartition records one absorbed partition of the given size.
func (r *PrometheusRecorder) RecordPartition(ctx context.Context, result *model.RunResult, size int) {
	r.partitionCounter.WithLabelValues(result.ObjectType).Inc()
	r.recordsScannedTotal.WithLabelValues(result.ObjectType).Add(float64(size))
}

// RecordGroup records one merged or reported group.
func (r *PrometheusRecorder) RecordGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup) {
	r.groupCounter.WithLabelValues(result.ObjectType, string(group.Phase)).Inc()
	r.groupSizeHist.WithLabelValues(result.ObjectType).Observe(float64(len(group.MemberIDs)))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ coremetrics.Recorder = (*PrometheusRecorder)(nil)
