package importer

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
)

// StageRequest is a manual upload to stage.
type StageRequest struct {
	Rows         []map[string]any `json:"rows" validate:"max=200000"`
	Mapping      schema.Mapping   `json:"mapping,omitempty"`
	FixedCityID  *int64           `json:"fixed_city_id,omitempty" validate:"omitempty,gt=0"`
	FixedNicheID *int64           `json:"fixed_niche_id,omitempty" validate:"omitempty,gt=0"`
	// FileName is kept in the run params for audit.
	FileName string  `json:"file_name,omitempty" validate:"max=255"`
	ActorID  string  `json:"actor_id,omitempty" validate:"max=100"`
	Options  Options `json:"options"`
}

// StageUpload resolves an upload and persists one conflict record per
// non-blank row. The batch is validated as a whole first; a rejected
// upload returns a *ValidationError and persists nothing.
func (s *Service) StageUpload(ctx context.Context, req StageRequest) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkFixedTargets(ctx, req.FixedCityID, req.FixedNicheID); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, schema.StageInput{
		Rows:         req.Rows,
		Mapping:      req.Mapping,
		FixedCityID:  req.FixedCityID,
		FixedNicheID: req.FixedNicheID,
		DryRun:       req.Options.DryRun,
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(res.Rows))
	for _, rr := range res.Rows {
		rec, err := stagedRecord(rr)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	opts := req.Options
	opts.ActivateCompanies = opts.ActivateCompanies || s.cfg.ActivateCompanies
	run := &Run{
		Source:  SourceManualUpload,
		CityID:  res.CityID,
		NicheID: res.NicheID,
		DryRun:  opts.DryRun,
		ActorID: req.ActorID,
		Options: opts,
		Params: map[string]any{
			"file_name":      req.FileName,
			"rows":           len(req.Rows),
			"skipped_blank":  len(req.Rows) - len(res.Rows),
			"mapping":        req.Mapping,
			"fixed_city_id":  req.FixedCityID,
			"fixed_niche_id": req.FixedNicheID,
			"created_niches": res.CreatedNiches,
		},
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := s.store.TransitionRun(ctx, run.ID, RunPending, RunRunning); err != nil {
		return nil, s.failRun(ctx, run.ID, err)
	}
	for i := range records {
		records[i].RunID = run.ID
	}
	if err := s.store.InsertRecords(ctx, records); err != nil {
		return nil, s.failRun(ctx, run.ID, err)
	}
	if err := s.store.FinishRun(ctx, run.ID, RunDone, Counters{Found: len(records)}, ""); err != nil {
		return nil, err
	}

	zap.L().Info("importer: upload staged",
		zap.String("run_id", run.ID),
		zap.Int("records", len(records)),
		zap.Int("skipped_blank", len(req.Rows)-len(res.Rows)),
		zap.Strings("created_niches", res.CreatedNiches),
		zap.Bool("dry_run", opts.DryRun),
	)
	return s.GetRun(ctx, run.ID)
}

func (s *Service) checkFixedTargets(ctx context.Context, cityID, nicheID *int64) error {
	if cityID != nil {
		city, err := s.registry.GetCity(ctx, *cityID)
		if err != nil {
			return err
		}
		if city == nil {
			return &ValidationError{Code: CodeCityNotFound, Message: "city " + strconv.FormatInt(*cityID, 10) + " not found", Row: -1}
		}
	}
	if nicheID != nil {
		niche, err := s.registry.GetNiche(ctx, *nicheID)
		if err != nil {
			return err
		}
		if niche == nil {
			return &ValidationError{Code: CodeNicheNotFound, Message: "niche " + strconv.FormatInt(*nicheID, 10) + " not found", Row: -1}
		}
	}
	return nil
}

func stagedRecord(rr schema.ResolvedRow) (Record, error) {
	raw, err := json.Marshal(rr.Raw)
	if err != nil {
		return Record{}, eris.Wrapf(err, "importer: marshal row %d", rr.Index)
	}
	proj := Projection{
		Name:            normalize.Address(rr.Value(schema.FieldName)),
		Phone:           normalize.Address(rr.Value(schema.FieldPhone)),
		WhatsApp:        normalize.Address(rr.Value(schema.FieldWhatsApp)),
		Address:         normalize.Address(rr.Value(schema.FieldAddress)),
		Website:         normalize.Address(rr.Value(schema.FieldWebsite)),
		City:            rr.Value(schema.FieldCity),
		Niche:           rr.Value(schema.FieldNiche),
		Source:          rr.Value(schema.FieldSource),
		NormalizedName:  normalize.Name(rr.Value(schema.FieldName)),
		NormalizedPhone: normalize.PhoneDigits(rr.Value(schema.FieldPhone)),
	}
	return Record{
		Position:   rr.Index,
		CityID:     rr.CityID,
		NicheID:    rr.NicheID,
		DedupeKey:  nullString(DedupeKey(proj.NormalizedPhone, proj.NormalizedName, rr.CityID)),
		Status:     RecordConflict,
		Reason:     ReasonStaged,
		Raw:        raw,
		Projection: proj,
	}, nil
}
