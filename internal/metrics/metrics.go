// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames delivered by the capture source by outcome
	// (decoded, unparsed, capture_error).
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulso_frames_total",
			Help: "Total number of frames delivered by the capture source",
		},
		[]string{"device", "result"},
	)

	// ConnectionsTotal counts connection attempts fed to the aggregator.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulso_connections_total",
			Help: "Total number of counted connection attempts",
		},
		[]string{"device"},
	)

	// CapturePackets mirrors the capture handle counters at the end of a run.
	CapturePackets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulso_capture_packets",
			Help: "Capture handle counters (received, dropped, if_dropped)",
		},
		[]string{"device", "counter"},
	)

	// RunsTotal counts finished runs by termination reason.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulso_runs_total",
			Help: "Total number of finished runs by termination reason",
		},
		[]string{"reason"},
	)

	// RunDurationSeconds measures wall-clock run time.
	RunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulso_run_duration_seconds",
			Help:    "Duration of a counting run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10), // 100ms to ~7h
		},
	)

	// ReportGroups tracks the number of source groups in the last report.
	ReportGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulso_report_groups",
			Help: "Number of source address groups in the last rendered report",
		},
	)
)

// Frame outcome label values.
const (
	ResultDecoded      = "decoded"
	ResultUnparsed     = "unparsed"
	ResultCaptureError = "capture_error"
)
