package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) run(args mock.Arguments) (*importer.Run, error) {
	run, _ := args.Get(0).(*importer.Run)
	return run, args.Error(1)
}

func (m *mockImporter) record(args mock.Arguments) (*importer.Record, error) {
	rec, _ := args.Get(0).(*importer.Record)
	return rec, args.Error(1)
}

func (m *mockImporter) StartAPIImport(ctx context.Context, req importer.APIImportRequest) (*importer.Run, error) {
	return m.run(m.Called(ctx, req))
}

func (m *mockImporter) StageUpload(ctx context.Context, req importer.StageRequest) (*importer.Run, error) {
	return m.run(m.Called(ctx, req))
}

func (m *mockImporter) GetRun(ctx context.Context, runID string) (*importer.Run, error) {
	return m.run(m.Called(ctx, runID))
}

func (m *mockImporter) ListRuns(ctx context.Context, filter importer.RunFilter) ([]importer.Run, error) {
	args := m.Called(ctx, filter)
	runs, _ := args.Get(0).([]importer.Run)
	return runs, args.Error(1)
}

func (m *mockImporter) ListRecords(ctx context.Context, filter importer.RecordFilter) (*importer.RecordPage, error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*importer.RecordPage)
	return page, args.Error(1)
}

func (m *mockImporter) GetRecord(ctx context.Context, recordID string) (*importer.Record, error) {
	return m.record(m.Called(ctx, recordID))
}

func (m *mockImporter) PublishRun(ctx context.Context, runID string, opts importer.PublishOptions) (*importer.PublishResult, error) {
	args := m.Called(ctx, runID, opts)
	res, _ := args.Get(0).(*importer.PublishResult)
	return res, args.Error(1)
}

func (m *mockImporter) PublishRecord(ctx context.Context, recordID string, opts importer.PublishOptions) (*importer.Record, error) {
	return m.record(m.Called(ctx, recordID, opts))
}

func (m *mockImporter) ResolveConflict(ctx context.Context, recordID string, res importer.ConflictResolution) (*importer.Record, error) {
	return m.record(m.Called(ctx, recordID, res))
}

func (m *mockImporter) InvalidateRun(ctx context.Context, runID, actor string) (*importer.Run, error) {
	return m.run(m.Called(ctx, runID, actor))
}

func (m *mockImporter) ListCompaniesByRun(ctx context.Context, runID string) ([]company.Company, error) {
	args := m.Called(ctx, runID)
	cs, _ := args.Get(0).([]company.Company)
	return cs, args.Error(1)
}
