package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
)

// Config tunes the service.
type Config struct {
	// DefaultLimit is the search result limit when a request sets none.
	DefaultLimit int
	// ActivateCompanies is the default for Options.ActivateCompanies.
	ActivateCompanies bool
	// MaxErrorSamples caps the per-record failures reported by PublishRun.
	MaxErrorSamples int
}

// Service orchestrates imports against the registry.
type Service struct {
	store    Store
	registry company.Registry
	matcher  *company.Matcher
	resolver *schema.Resolver
	search   serpapi.Client
	keys     KeySource
	cfg      Config
}

// NewService wires a Service. search and keys may be nil when only manual
// uploads are served.
func NewService(store Store, registry company.Registry, search serpapi.Client, keys KeySource, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = serpapi.PageSize
	}
	if cfg.MaxErrorSamples <= 0 {
		cfg.MaxErrorSamples = 10
	}
	return &Service{
		store:    store,
		registry: registry,
		matcher:  company.NewMatcher(registry),
		resolver: schema.NewResolver(registry),
		search:   search,
		keys:     keys,
		cfg:      cfg,
	}
}

// GetRun returns a run or ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, runID string) (*Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, eris.Wrapf(ErrRunNotFound, "importer: run %s", runID)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *Service) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	return s.store.ListRuns(ctx, filter)
}

// RecordPage is one page of a run's records.
type RecordPage struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// ListRecords returns a page of a run's records in upload order.
func (s *Service) ListRecords(ctx context.Context, filter RecordFilter) (*RecordPage, error) {
	if _, err := s.GetRun(ctx, filter.RunID); err != nil {
		return nil, err
	}
	filter.Limit = pageLimit(filter.Limit)
	filter.Offset = max(filter.Offset, 0)

	records, err := s.store.ListRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &RecordPage{Records: records, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetRecord returns a record or ErrRecordNotFound.
func (s *Service) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, eris.Wrapf(ErrRecordNotFound, "importer: record %s", recordID)
	}
	return rec, nil
}

// InvalidateRun marks a done run as invalidated. Registry writes made by
// the run are left in place.
func (s *Service) InvalidateRun(ctx context.Context, runID, actor string) (*Run, error) {
	if err := s.store.InvalidateRun(ctx, runID, actor); err != nil {
		return nil, err
	}
	zap.L().Info("importer: run invalidated", zap.String("run_id", runID), zap.String("actor", actor))
	return s.GetRun(ctx, runID)
}

// ListCompaniesByRun returns the companies a run created or last updated.
func (s *Service) ListCompaniesByRun(ctx context.Context, runID string) ([]company.Company, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.registry.ListCompaniesByRun(ctx, runID)
}
