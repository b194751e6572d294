// Package monitoring watches import run health and raises webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

// MetricsSnapshot holds a point-in-time view of import health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal       int     `json:"runs_total"`
	RunsDone        int     `json:"runs_done"`
	RunsFailed      int     `json:"runs_failed"`
	RunsInFlight    int     `json:"runs_in_flight"`
	RunsInvalidated int     `json:"runs_invalidated"`
	RunsStuck       int     `json:"runs_stuck"`
	RunFailRate     float64 `json:"run_fail_rate"`

	// Counter totals over done runs.
	Records         importer.Counters `json:"records"`
	RecordErrorRate float64           `json:"record_error_rate"`

	// Records still in conflict across done runs.
	ConflictBacklog int `json:"conflict_backlog"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunReader is the read side of the importer the collector needs.
type RunReader interface {
	ListRuns(ctx context.Context, filter importer.RunFilter) ([]importer.Run, error)
	ListRecords(ctx context.Context, filter importer.RecordFilter) (*importer.RecordPage, error)
}

// Collector gathers metrics from import runs.
type Collector struct {
	runs RunReader
	// stuckAfter marks pending or running runs older than this as stuck.
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunReader, stuckAfter time.Duration) *Collector {
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	return &Collector{runs: runs, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. Runs are read
// newest first, page by page, until one predates the window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var done []importer.Run
	for offset := 0; ; {
		page, err := c.runs.ListRuns(ctx, importer.RunFilter{Limit: importer.MaxPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}
		inWindow := 0
		for _, r := range page {
			if r.CreatedAt.Before(cutoff) {
				break
			}
			inWindow++
			snap.RunsTotal++
			switch r.Status {
			case importer.RunDone:
				snap.RunsDone++
				snap.Records = snap.Records.Add(r.Counters)
				done = append(done, r)
			case importer.RunFailed:
				snap.RunsFailed++
			case importer.RunInvalidated:
				snap.RunsInvalidated++
			case importer.RunPending, importer.RunRunning:
				snap.RunsInFlight++
				if now.Sub(r.CreatedAt) > c.stuckAfter {
					snap.RunsStuck++
				}
			}
		}
		if inWindow < len(page) || len(page) < importer.MaxPageSize {
			break
		}
		offset += len(page)
	}

	if finished := snap.RunsDone + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Records.Found > 0 {
		snap.RecordErrorRate = float64(snap.Records.Errors) / float64(snap.Records.Found)
	}

	for _, r := range done {
		page, err := c.runs.ListRecords(ctx, importer.RecordFilter{
			RunID:  r.ID,
			Status: importer.RecordConflict,
			Limit:  1,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: count conflicts for run %s", r.ID)
		}
		snap.ConflictBacklog += page.Total
	}

	return snap, nil
}
