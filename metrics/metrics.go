// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts finished download requests by mode
	// (direct/fallback/none) and outcome (completed/failed/aborted).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgrab_downloads_total",
		Help: "Finished download requests by mode and outcome.",
	}, []string{"mode", "outcome"})

	ActiveDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidgrab_active_downloads",
		Help: "Downloads currently in flight.",
	})

	StreamedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidgrab_streamed_bytes_total",
		Help: "Media bytes written to clients.",
	})

	RejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgrab_rejected_total",
		Help: "Requests rejected before a subprocess was started.",
	}, []string{"reason"})
)
