package monitoring

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

// fakeRuns serves runs newest first, like the stores do.
type fakeRuns struct {
	runs      []importer.Run
	conflicts map[string]int
	listErr   error
	pages     int
}

func (f *fakeRuns) ListRuns(_ context.Context, filter importer.RunFilter) ([]importer.Run, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.pages++
	if filter.Offset >= len(f.runs) {
		return nil, nil
	}
	end := min(filter.Offset+filter.Limit, len(f.runs))
	return f.runs[filter.Offset:end], nil
}

func (f *fakeRuns) ListRecords(_ context.Context, filter importer.RecordFilter) (*importer.RecordPage, error) {
	return &importer.RecordPage{Total: f.conflicts[filter.RunID], Limit: filter.Limit}, nil
}

var collectNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCollector(runs RunReader) *Collector {
	c := NewCollector(runs, 30*time.Minute)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	f := &fakeRuns{
		runs: []importer.Run{
			{ID: "r1", Status: importer.RunRunning, CreatedAt: collectNow.Add(-5 * time.Minute)},
			{ID: "r2", Status: importer.RunRunning, CreatedAt: collectNow.Add(-2 * time.Hour)},
			{ID: "r3", Status: importer.RunDone, CreatedAt: collectNow.Add(-3 * time.Hour),
				Counters: importer.Counters{Found: 20, Inserted: 10, Errors: 2, Conflicts: 3}},
			{ID: "r4", Status: importer.RunDone, CreatedAt: collectNow.Add(-4 * time.Hour),
				Counters: importer.Counters{Found: 10, Inserted: 2}},
			{ID: "r5", Status: importer.RunFailed, CreatedAt: collectNow.Add(-5 * time.Hour)},
			{ID: "r6", Status: importer.RunInvalidated, CreatedAt: collectNow.Add(-6 * time.Hour)},
			// Outside the window.
			{ID: "old", Status: importer.RunFailed, CreatedAt: collectNow.Add(-48 * time.Hour)},
		},
		conflicts: map[string]int{"r3": 3, "r4": 7, "r6": 100},
	}

	snap, err := newTestCollector(f).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 6, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsDone)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 2, snap.RunsInFlight)
	assert.Equal(t, 1, snap.RunsStuck)
	assert.Equal(t, 1, snap.RunsInvalidated)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 1e-9)
	assert.Equal(t, importer.Counters{Found: 30, Inserted: 12, Errors: 2, Conflicts: 3}, snap.Records)
	assert.InDelta(t, 2.0/30.0, snap.RecordErrorRate, 1e-9)
	assert.Equal(t, 10, snap.ConflictBacklog)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_Collect_Pages(t *testing.T) {
	f := &fakeRuns{}
	for i := 0; i < importer.MaxPageSize+5; i++ {
		f.runs = append(f.runs, importer.Run{
			ID:        "r" + strconv.Itoa(i),
			Status:    importer.RunFailed,
			CreatedAt: collectNow.Add(-time.Duration(i) * time.Second),
		})
	}

	snap, err := newTestCollector(f).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, importer.MaxPageSize+5, snap.RunsTotal)
	assert.Equal(t, 2, f.pages)
	assert.InDelta(t, 1.0, snap.RunFailRate, 1e-9)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := newTestCollector(&fakeRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.RecordErrorRate)
}

func TestCollector_Collect_ListError(t *testing.T) {
	_, err := newTestCollector(&fakeRuns{listErr: eris.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
