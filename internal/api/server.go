// Package api exposes the import operations as a JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

// Importer is the slice of importer.Service the handlers call.
type Importer interface {
	StartAPIImport(ctx context.Context, req importer.APIImportRequest) (*importer.Run, error)
	StageUpload(ctx context.Context, req importer.StageRequest) (*importer.Run, error)
	GetRun(ctx context.Context, runID string) (*importer.Run, error)
	ListRuns(ctx context.Context, filter importer.RunFilter) ([]importer.Run, error)
	ListRecords(ctx context.Context, filter importer.RecordFilter) (*importer.RecordPage, error)
	GetRecord(ctx context.Context, recordID string) (*importer.Record, error)
	PublishRun(ctx context.Context, runID string, opts importer.PublishOptions) (*importer.PublishResult, error)
	PublishRecord(ctx context.Context, recordID string, opts importer.PublishOptions) (*importer.Record, error)
	ResolveConflict(ctx context.Context, recordID string, res importer.ConflictResolution) (*importer.Record, error)
	InvalidateRun(ctx context.Context, runID, actor string) (*importer.Run, error)
	ListCompaniesByRun(ctx context.Context, runID string) ([]company.Company, error)
}

// Config for the HTTP handler.
type Config struct {
	Importer    Importer
	CORSOrigins []string
}

type server struct {
	svc Importer
}

// New returns the router serving the import API.
func New(cfg Config) http.Handler {
	s := &server{svc: cfg.Importer}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actor-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/imports", func(r chi.Router) {
		r.Post("/api", s.startAPIImport)
		r.Post("/upload", s.stageUpload)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/records", s.listRecords)
			r.Get("/export", s.exportRun)
			r.Post("/publish", s.publishRun)
			r.Post("/invalidate", s.invalidateRun)
		})
	})

	r.Route("/records/{recordID}", func(r chi.Router) {
		r.Get("/", s.getRecord)
		r.Post("/publish", s.publishRecord)
		r.Post("/resolve", s.resolveConflict)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
