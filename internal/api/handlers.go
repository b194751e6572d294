package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/export"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/fetcher"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
)

const actorHeader = "X-Actor-ID"

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, fetcher.MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// actor prefers the body value, then the X-Actor-ID header.
func actor(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(actorHeader)
}

func (s *server) startAPIImport(w http.ResponseWriter, r *http.Request) {
	var req importer.APIImportRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.ActorID = actor(r, req.ActorID)

	run, err := s.svc.StartAPIImport(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *server) stageUpload(w http.ResponseWriter, r *http.Request) {
	var req importer.StageRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		parsed, err := multipartStageRequest(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		req = *parsed
	} else if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.ActorID = actor(r, req.ActorID)

	run, err := s.svc.StageUpload(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// multipartStageRequest reads a "file" part plus optional form fields:
// mapping (JSON object), fixed_city_id, fixed_niche_id, actor_id,
// ignore_duplicates, update_existing, dry_run, activate_companies.
func multipartStageRequest(r *http.Request) (*importer.StageRequest, error) {
	if err := r.ParseMultipartForm(fetcher.MaxUploadBytes); err != nil {
		return nil, errors.New("invalid multipart body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file is required")
	}
	defer file.Close() //nolint:errcheck

	format, err := fetcher.DetectFormat(header.Filename)
	if err != nil {
		return nil, err
	}
	rows, err := fetcher.ReadRows(r.Context(), format, file)
	if err != nil {
		return nil, err
	}

	req := &importer.StageRequest{
		Rows:     rows,
		FileName: header.Filename,
		ActorID:  r.FormValue("actor_id"),
	}
	if raw := r.FormValue("mapping"); raw != "" {
		var m schema.Mapping
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.New("mapping must be a JSON object")
		}
		req.Mapping = m
	}
	if req.FixedCityID, err = formInt64(r, "fixed_city_id"); err != nil {
		return nil, err
	}
	if req.FixedNicheID, err = formInt64(r, "fixed_niche_id"); err != nil {
		return nil, err
	}
	req.Options = importer.Options{
		IgnoreDuplicates:  formBool(r, "ignore_duplicates"),
		UpdateExisting:    formBool(r, "update_existing"),
		DryRun:            formBool(r, "dry_run"),
		ActivateCompanies: formBool(r, "activate_companies"),
	}
	return req, nil
}

func formInt64(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New(key + " must be an integer")
	}
	return &n, nil
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	runs, err := s.svc.ListRuns(r.Context(), importer.RunFilter{
		Status: importer.RunStatus(r.URL.Query().Get("status")),
		Source: importer.SourceKind(r.URL.Query().Get("source")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	if runs == nil {
		runs = []importer.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	page, err := s.svc.ListRecords(r.Context(), importer.RecordFilter{
		RunID:  chi.URLParam(r, "runID"),
		Status: importer.RecordStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	if page.Records == nil {
		page.Records = []importer.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) exportRun(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	kind, err := export.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	runID := chi.URLParam(r, "runID")
	t, err := export.RunExport(r.Context(), s.svc, runID, kind)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+runID+"-"+string(kind)+"."+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, t); err != nil {
		zap.L().Warn("api: export write failed", zap.String("run_id", runID), zap.Error(err))
	}
}

type publishBody struct {
	Force   bool   `json:"force"`
	ActorID string `json:"actor_id,omitempty"`
}

func (s *server) publishRun(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	res, err := s.svc.PublishRun(r.Context(), chi.URLParam(r, "runID"), importer.PublishOptions{
		Force:   body.Force,
		ActorID: actor(r, body.ActorID),
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) invalidateRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID string `json:"actor_id,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	run, err := s.svc.InvalidateRun(r.Context(), chi.URLParam(r, "runID"), actor(r, body.ActorID))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetRecord(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) publishRecord(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	rec, err := s.svc.PublishRecord(r.Context(), chi.URLParam(r, "recordID"), importer.PublishOptions{
		Force:   body.Force,
		ActorID: actor(r, body.ActorID),
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var res importer.ConflictResolution
	if err := decodeBody(r, &res); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	res.ActorID = actor(r, res.ActorID)

	rec, err := s.svc.ResolveConflict(r.Context(), chi.URLParam(r, "recordID"), res)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
