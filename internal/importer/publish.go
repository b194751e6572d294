package importer

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/quality"
)

// PublishOptions control publishing of staged records.
type PublishOptions struct {
	// Force creates a new company even when a duplicate exists.
	Force   bool   `json:"force"`
	ActorID string `json:"actor_id,omitempty"`
}

// ErrorSample is one per-record failure reported to the operator.
type ErrorSample struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// PublishResult summarizes a PublishRun call.
type PublishResult struct {
	Run       *Run          `json:"run"`
	Processed int           `json:"processed"`
	Delta     Counters      `json:"delta"`
	Samples   []ErrorSample `json:"error_samples,omitempty"`
}

// PublishRun publishes every staged record of a manual run in upload
// order. A failing record is marked error and the batch continues; the
// counter deltas are added to the run once at the end.
func (s *Service) PublishRun(ctx context.Context, runID string, opts PublishOptions) (*PublishResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := checkPublishable(run); err != nil {
		return nil, err
	}
	ids, err := s.store.PendingRecordIDs(ctx, runID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("importer: publish started", zap.Int("pending", len(ids)), zap.Bool("force", opts.Force))

	result := &PublishResult{}
	var loopErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}
		rec, err := s.store.GetRecord(ctx, id)
		if err != nil {
			loopErr = err
			break
		}
		if rec == nil {
			continue
		}
		delta, failure, err := s.publishStaged(ctx, run, rec, opts)
		if errors.Is(err, ErrRecordNotInConflict) {
			log.Debug("importer: record resolved concurrently", zap.String("record_id", id))
			continue
		}
		if err != nil {
			failure = err.Error()
			delta = Counters{Errors: 1}
		}
		result.Processed++
		result.Delta = result.Delta.Add(delta)
		if failure != "" {
			log.Warn("importer: record not published", zap.String("record_id", id), zap.String("reason", failure))
			if len(result.Samples) < s.cfg.MaxErrorSamples {
				result.Samples = append(result.Samples, ErrorSample{RecordID: id, Reason: failure})
			}
		}
	}

	if !result.Delta.IsZero() {
		if err := s.store.AddRunCounters(context.WithoutCancel(ctx), runID, result.Delta); err != nil {
			return nil, err
		}
	}
	if loopErr != nil {
		return nil, eris.Wrapf(loopErr, "importer: publish run %s stopped after %d records", runID, result.Processed)
	}

	log.Info("importer: publish done",
		zap.Int("processed", result.Processed),
		zap.Int("inserted", result.Delta.Inserted),
		zap.Int("deduped", result.Delta.Deduped),
		zap.Int("errors", result.Delta.Errors),
	)
	if result.Run, err = s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return result, nil
}

// PublishRecord publishes a single staged record. Publishing a record
// that already left conflict returns ErrRecordNotInConflict.
func (s *Service) PublishRecord(ctx context.Context, recordID string, opts PublishOptions) (*Record, error) {
	rec, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != RecordConflict || rec.CompanyID != nil {
		return nil, eris.Wrapf(ErrRecordNotInConflict, "importer: record %s is %s", recordID, rec.Status)
	}
	run, err := s.GetRun(ctx, rec.RunID)
	if err != nil {
		return nil, err
	}
	if err := checkPublishable(run); err != nil {
		return nil, err
	}

	delta, failure, err := s.publishStaged(ctx, run, rec, opts)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		zap.L().Warn("importer: record not published",
			zap.String("run_id", run.ID), zap.String("record_id", recordID), zap.String("reason", failure))
	}
	if err := s.store.AddRunCounters(context.WithoutCancel(ctx), run.ID, delta); err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, recordID)
}

func checkPublishable(run *Run) error {
	if run.Source != SourceManualUpload {
		return eris.Wrapf(ErrNotManualRun, "importer: run %s is %s", run.ID, run.Source)
	}
	if run.DryRun {
		return eris.Wrapf(ErrDryRunPublish, "importer: run %s", run.ID)
	}
	if run.Status != RunDone {
		return eris.Wrapf(ErrInvalidTransition, "importer: run %s is %s, want done", run.ID, run.Status)
	}
	return nil
}

// publishStaged writes one staged record to the registry. failure is the
// reason a record was marked error; err is a store failure on the record
// itself.
func (s *Service) publishStaged(ctx context.Context, run *Run, rec *Record, opts PublishOptions) (delta Counters, failure string, err error) {
	proj := rec.Projection
	cityID := rec.CityID
	if cityID == nil {
		cityID = run.CityID
	}
	nicheID := rec.NicheID
	if nicheID == nil {
		nicheID = run.NicheID
	}

	markError := func(reason string) (Counters, string, error) {
		err := s.store.ResolveRecord(ctx, rec.ID, RecordUpdate{Status: RecordError, Reason: reason})
		if err != nil {
			return Counters{}, "", err
		}
		return Counters{Errors: 1}, reason, nil
	}

	switch {
	case normalize.Name(proj.Name) == "":
		return markError(ReasonMissingName)
	case cityID == nil:
		return markError(ReasonMissingCity)
	case nicheID == nil:
		return markError(ReasonMissingNiche)
	}

	matches, err := s.matcher.FindMatches(ctx, company.Candidate{
		Name:     proj.Name,
		Phone:    proj.Phone,
		WhatsApp: proj.WhatsApp,
		Address:  proj.Address,
		Website:  proj.Website,
		CityID:   cityID,
	})
	if err != nil {
		return markError("match failed: " + err.Error())
	}

	meta := &PublishMeta{By: opts.ActorID, At: time.Now().UTC()}
	if len(matches) > 0 && !opts.Force {
		existing := matches[0].Company
		if err := s.registry.LinkCompanyToNiche(ctx, existing.ID, *nicheID); err != nil {
			return markError("niche link failed: " + err.Error())
		}
		proj.MatchedCompanyID = &existing.ID
		proj.MatchRule = string(matches[0].Rule)
		meta.Mode = PublishLinkedExisting
		err := s.store.ResolveRecord(ctx, rec.ID, RecordUpdate{
			Status:     RecordIgnored,
			CompanyID:  &existing.ID,
			Reason:     ReasonDuplicateExisting,
			Publish:    meta,
			Projection: &proj,
		})
		if err != nil {
			return Counters{}, "", err
		}
		return Counters{Deduped: 1}, "", nil
	}

	c := &company.Company{
		TradeName:   proj.Name,
		Phone:       proj.Phone,
		WhatsApp:    proj.WhatsApp,
		Address:     proj.Address,
		Website:     proj.Website,
		CityID:      cityID,
		Source:      company.SourceManual,
		SourceRunID: &run.ID,
	}
	fields := quality.FromCompany(c, nicheID)
	c.QualityScore = quality.Score(fields)
	c.Status = quality.InitialStatus(fields, run.Options.ActivateCompanies)
	if err := s.registry.InsertCompany(ctx, c); err != nil {
		return markError("insert failed: " + err.Error())
	}

	reason := ReasonPublished
	if err := s.registry.LinkCompanyToNiche(ctx, c.ID, *nicheID); err != nil {
		zap.L().Warn("importer: niche link failed",
			zap.String("record_id", rec.ID), zap.Int64("company_id", c.ID), zap.Error(err))
		reason = joinReason(reason, "niche link failed")
	}
	if len(matches) > 0 {
		proj.MatchedCompanyID = &matches[0].Company.ID
		proj.MatchRule = string(matches[0].Rule)
	}
	meta.Mode = PublishCreatedNew
	err = s.store.ResolveRecord(ctx, rec.ID, RecordUpdate{
		Status:     RecordInserted,
		CompanyID:  &c.ID,
		Reason:     reason,
		Publish:    meta,
		Projection: &proj,
	})
	if err != nil {
		return Counters{}, "", err
	}
	return Counters{Inserted: 1}, "", nil
}
