// Package metrics exports the outcome of the last backup run in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/semmidev/folderbak/internal/domain"
)

var folderStatuses = []domain.FolderStatus{
	domain.FolderPending,
	domain.FolderArchived,
	domain.FolderUploaded,
	domain.FolderSkippedNoSpace,
	domain.FolderFailed,
}

type Recorder struct {
	registry *prometheus.Registry

	lastRun       prometheus.Gauge
	duration      prometheus.Gauge
	success       prometheus.Gauge
	uploadedBytes prometheus.Gauge
	attempts      prometheus.Gauge
	folders       *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folderbak_last_run_timestamp_seconds",
			Help: "Unix time the last backup run started",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folderbak_last_run_duration_seconds",
			Help: "Wall time of the last backup run",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folderbak_last_run_success",
			Help: "1 if the last backup run finished without error",
		}),
		uploadedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folderbak_uploaded_bytes",
			Help: "On-disk size of the folders uploaded by the last run",
		}),
		attempts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folderbak_upload_attempts",
			Help: "Upload attempts made by the last run, retries included",
		}),
		folders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folderbak_folders",
			Help: "Folders of the last run by final status",
		}, []string{"status"}),
	}
}

// Observe records run, which finished at the given time.
func (r *Recorder) Observe(run *domain.BackupRun, finished time.Time) {
	r.lastRun.Set(float64(run.StartedAt.Unix()))
	r.duration.Set(finished.Sub(run.StartedAt).Seconds())

	if run.Outcome == domain.OutcomeFailure {
		r.success.Set(0)
	} else {
		r.success.Set(1)
	}

	var bytes int64
	var attempts int
	for _, job := range run.Jobs {
		attempts += job.Attempts
		if job.Status == domain.FolderUploaded {
			bytes += job.SizeBytes
		}
	}
	r.uploadedBytes.Set(float64(bytes))
	r.attempts.Set(float64(attempts))

	for _, status := range folderStatuses {
		r.folders.WithLabelValues(string(status)).Set(float64(run.Count(status)))
	}
}

// WriteTextfile atomically replaces path with the current values.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
