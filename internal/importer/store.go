package importer

import "context"

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus  `json:"status,omitempty"`
	Source SourceKind `json:"source,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// RecordFilter specifies criteria for listing a run's records.
type RecordFilter struct {
	RunID  string       `json:"run_id"`
	Status RecordStatus `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Paging and batching defaults.
const (
	DefaultBatchSize = 500
	DefaultPageSize  = 50
	MaxPageSize      = 1000
)

func pageLimit(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return min(n, MaxPageSize)
}

// RecordUpdate is the terminal write applied to a conflict record.
type RecordUpdate struct {
	Status     RecordStatus
	CompanyID  *int64
	Reason     string
	Publish    *PublishMeta
	Projection *Projection
}

// Store persists runs and records. Get* return (nil, nil) when the row does
// not exist.
type Store interface {
	// CreateRun assigns ID and CreatedAt.
	CreateRun(ctx context.Context, run *Run) error
	// TransitionRun moves a run from one status to another, failing with
	// ErrInvalidTransition when the run is not in from.
	TransitionRun(ctx context.Context, runID string, from, to RunStatus) error
	// FinishRun moves a running run to done or failed with its final counters.
	FinishRun(ctx context.Context, runID string, to RunStatus, counters Counters, errMsg string) error
	// AddRunCounters atomically adds delta to the persisted counters.
	AddRunCounters(ctx context.Context, runID string, delta Counters) error
	// InvalidateRun moves a done run to invalidated.
	InvalidateRun(ctx context.Context, runID, actor string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// InsertRecords assigns IDs and timestamps and writes in batches.
	InsertRecords(ctx context.Context, records []Record) error
	GetRecord(ctx context.Context, recordID string) (*Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)
	// PendingRecordIDs lists conflict records of a run without a company,
	// in upload order.
	PendingRecordIDs(ctx context.Context, runID string) ([]string, error)
	// ResolveRecord applies upd only while the record is in conflict,
	// returning ErrRecordNotInConflict otherwise.
	ResolveRecord(ctx context.Context, recordID string, upd RecordUpdate) error

	Migrate(ctx context.Context) error
}
