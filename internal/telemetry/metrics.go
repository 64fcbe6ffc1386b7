// Package telemetry records run metrics for a build and writes them in the
// Prometheus text format, for a node_exporter textfile collector to pick up.
package telemetry

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CSV file classifications.
const (
	FileTraffic = "traffic"
	FileSearch  = "search"
	FileEmpty   = "empty"
	FileInvalid = "invalid"
	FileError   = "error"
	FileIgnored = "ignored"
)

// Project outcomes.
const (
	ProjectOK      = "ok"
	ProjectNoData  = "no_data"
	ProjectFailed  = "failed"
	ProjectPartial = "partial"
)

// Recorder holds the metrics of one run. A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	csvFiles    *prometheus.CounterVec
	rows        *prometheus.CounterVec
	projects    *prometheus.CounterVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		csvFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docmetrics_csv_files_total",
			Help: "CSV files seen during the build, by classification",
		}, []string{"kind"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docmetrics_rows_total",
			Help: "Rows per schema before (input) and after (merged) deduplication",
		}, []string{"schema", "stage"}),
		projects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docmetrics_projects_total",
			Help: "Projects processed, by outcome",
		}, []string{"status"}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Name: "docmetrics_build_duration_seconds",
			Help: "Wall time of the last build",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "docmetrics_build_last_success_timestamp_seconds",
			Help: "Unix time of the last build that finished without error",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) CSVFile(kind string) {
	if r == nil {
		return
	}
	r.csvFiles.WithLabelValues(kind).Inc()
}

// Rows records how many rows went into a merge and how many survived it.
func (r *Recorder) Rows(schema string, input, merged int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(schema, "input").Add(float64(input))
	r.rows.WithLabelValues(schema, "merged").Add(float64(merged))
}

func (r *Recorder) Project(status string) {
	if r == nil {
		return
	}
	r.projects.WithLabelValues(status).Inc()
}

// Finish records the run duration and, on success, the completion time.
func (r *Recorder) Finish(d time.Duration, ok bool) {
	if r == nil {
		return
	}
	r.duration.Set(d.Seconds())
	if ok {
		r.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile atomically writes every metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
