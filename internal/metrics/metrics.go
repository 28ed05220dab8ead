// Package metrics records per-run sync metrics and writes them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run holds the figures of one sync run.
type Run struct {
	Status       string
	Watermark    int
	SnapshotSize int
	Selected     int
	Acquired     int
	Existing     int
	Failed       int
	Skipped      int
	Artifacts    int
	Published    bool
	Duration     time.Duration
	FinishedAt   time.Time
}

// Recorder owns a private registry, so repeated runs in one process (tests)
// never collide on global collectors.
type Recorder struct {
	registry *prometheus.Registry

	lastRun       *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	duration      prometheus.Gauge
	watermark     prometheus.Gauge
	snapshotItems prometheus.Gauge
	items         *prometheus.GaugeVec
	artifacts     prometheus.Gauge
	published     prometheus.Gauge
}

// NewRecorder registers the podmirror collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "podmirror_last_run_timestamp_seconds",
			Help: "Unix time the last sync run finished, by status",
		}, []string{"status"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_last_success_timestamp_seconds",
			Help: "Unix time of the last run that completed without a run-level error",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_last_run_duration_seconds",
			Help: "Wall time of the last sync run",
		}),
		watermark: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_watermark_position",
			Help: "Highest playlist position processed",
		}),
		snapshotItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_snapshot_items",
			Help: "Entries in the last fetched playlist snapshot",
		}),
		items: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "podmirror_last_run_items",
			Help: "Items handled by the last run, by outcome",
		}, []string{"outcome"}), // outcome=selected|acquired|existing|failed|skipped
		artifacts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_feed_items",
			Help: "Artifacts listed in the generated feed",
		}),
		published: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podmirror_last_run_published",
			Help: "Whether the last run published successfully (1) or not (0)",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records run.
func (r *Recorder) Observe(run Run) {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	status := strings.TrimSpace(run.Status)
	if status == "" {
		status = "unknown"
	}
	r.lastRun.Reset()
	r.lastRun.WithLabelValues(status).Set(float64(finished.Unix()))
	if status == "completed" || status == "no_new_items" {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
	r.duration.Set(run.Duration.Seconds())
	r.watermark.Set(float64(run.Watermark))
	r.snapshotItems.Set(float64(run.SnapshotSize))
	r.items.WithLabelValues("selected").Set(float64(run.Selected))
	r.items.WithLabelValues("acquired").Set(float64(run.Acquired))
	r.items.WithLabelValues("existing").Set(float64(run.Existing))
	r.items.WithLabelValues("failed").Set(float64(run.Failed))
	r.items.WithLabelValues("skipped").Set(float64(run.Skipped))
	r.artifacts.Set(float64(run.Artifacts))
	if run.Published {
		r.published.Set(1)
	} else {
		r.published.Set(0)
	}
}

// WriteTextfile writes the registry to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
