package importer

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/quality"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
)

// APIImportRequest starts a search import.
type APIImportRequest struct {
	CityID  int64  `json:"city_id" validate:"required,gt=0"`
	NicheID *int64 `json:"niche_id,omitempty" validate:"omitempty,gt=0"`
	// Query replaces the niche label in the search phrase.
	Query string `json:"query,omitempty" validate:"required_without=NicheID,max=200"`
	Limit int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
	// APIKey overrides the vault and configured keys for this run only.
	APIKey  string  `json:"api_key,omitempty"`
	ActorID string  `json:"actor_id,omitempty" validate:"max=100"`
	Options Options `json:"options"`
}

// SearchPhrase builds "<query or niche label> em <city name>".
func SearchPhrase(query, nicheLabel, cityName string) string {
	subject := strings.TrimSpace(query)
	if subject == "" {
		subject = strings.TrimSpace(nicheLabel)
	}
	return subject + " em " + strings.TrimSpace(cityName)
}

// StartAPIImport searches listings for a city and niche and decides each
// result synchronously against the registry. Validation and key errors
// return before a run exists; a search failure returns a *RunError.
func (s *Service) StartAPIImport(ctx context.Context, req APIImportRequest) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.search == nil {
		return nil, eris.New("importer: search client not configured")
	}

	city, err := s.registry.GetCity(ctx, req.CityID)
	if err != nil {
		return nil, err
	}
	if city == nil {
		return nil, &ValidationError{Code: CodeCityNotFound, Message: "city " + strconv.FormatInt(req.CityID, 10) + " not found", Row: -1}
	}
	var niche *company.Niche
	if req.NicheID != nil {
		if niche, err = s.registry.GetNiche(ctx, *req.NicheID); err != nil {
			return nil, err
		}
		if niche == nil {
			return nil, &ValidationError{Code: CodeNicheNotFound, Message: "niche " + strconv.FormatInt(*req.NicheID, 10) + " not found", Row: -1}
		}
	}

	key := req.APIKey
	if key == "" && s.keys != nil {
		if key, err = s.keys.SearchAPIKey(ctx); err != nil {
			return nil, err
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	nicheLabel := ""
	if niche != nil {
		nicheLabel = niche.Label
	}
	phrase := SearchPhrase(req.Query, nicheLabel, city.Name)

	opts := req.Options
	opts.ActivateCompanies = opts.ActivateCompanies || s.cfg.ActivateCompanies

	run := &Run{
		Source:  SourceAPISearch,
		CityID:  &city.ID,
		NicheID: req.NicheID,
		Query:   nullString(strings.TrimSpace(req.Query)),
		Limit:   limit,
		DryRun:  opts.DryRun,
		ActorID: req.ActorID,
		Options: opts,
		Params: map[string]any{
			"city_id":  city.ID,
			"niche_id": req.NicheID,
			"query":    req.Query,
			"limit":    limit,
			"phrase":   phrase,
		},
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := s.store.TransitionRun(ctx, run.ID, RunPending, RunRunning); err != nil {
		return nil, s.failRun(ctx, run.ID, err)
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", string(run.Source)))
	log.Info("importer: api import started", zap.String("phrase", phrase), zap.Int("limit", limit), zap.Bool("dry_run", opts.DryRun))

	results, err := s.search.Search(ctx, serpapi.SearchRequest{Query: phrase, Limit: limit, APIKey: key})
	if err != nil {
		return nil, s.failRun(ctx, run.ID, err)
	}

	counters := Counters{Found: len(results)}
	item := searchItem{run: run, city: city, niche: niche}
	for i, res := range results {
		if err := ctx.Err(); err != nil {
			return nil, s.failRun(ctx, run.ID, err)
		}
		rec, delta := s.processSearchResult(ctx, item, i, res)
		if err := s.store.InsertRecords(ctx, []Record{rec}); err != nil {
			return nil, s.failRun(ctx, run.ID, err)
		}
		counters = counters.Add(delta)
	}

	if err := s.store.FinishRun(ctx, run.ID, RunDone, counters, ""); err != nil {
		return nil, err
	}
	log.Info("importer: api import done",
		zap.Int("found", counters.Found),
		zap.Int("inserted", counters.Inserted),
		zap.Int("updated", counters.Updated),
		zap.Int("conflicts", counters.Conflicts),
		zap.Int("deduped", counters.Deduped),
		zap.Int("errors", counters.Errors),
	)
	return s.GetRun(ctx, run.ID)
}

// failRun marks a running run failed with zero counters and wraps cause.
func (s *Service) failRun(ctx context.Context, runID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	zap.L().Error("importer: run failed", zap.String("run_id", runID), zap.Error(cause))
	if err := s.store.FinishRun(ctx, runID, RunFailed, Counters{}, cause.Error()); err != nil {
		return eris.Wrapf(err, "importer: mark run %s failed after %v", runID, cause)
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return &RunError{Run: run, Err: cause}
}

type searchItem struct {
	run   *Run
	city  *company.City
	niche *company.Niche
}

func (it searchItem) nicheID() *int64 {
	if it.niche == nil {
		return nil
	}
	return &it.niche.ID
}

// DedupeKey is the normalized phone, else "<normalized name>:<city id>",
// else empty.
func DedupeKey(normalizedPhone, normalizedName string, cityID *int64) string {
	if normalizedPhone != "" {
		return normalizedPhone
	}
	if normalizedName != "" && cityID != nil {
		return normalizedName + ":" + strconv.FormatInt(*cityID, 10)
	}
	return ""
}

// processSearchResult decides one result. Registry failures are confined
// to the returned record.
func (s *Service) processSearchResult(ctx context.Context, it searchItem, pos int, res serpapi.Result) (Record, Counters) {
	opts := it.run.Options
	proj := Projection{
		Name:            normalize.Address(res.Name),
		Phone:           normalize.Address(res.Phone),
		Address:         normalize.Address(res.Address),
		Website:         normalize.Address(res.Website),
		City:            it.city.Name,
		Source:          string(company.SourceSerpAPI),
		NormalizedName:  normalize.Name(res.Name),
		NormalizedPhone: normalize.PhoneDigits(res.Phone),
	}
	if it.niche != nil {
		proj.Niche = it.niche.Label
	}
	rec := Record{
		RunID:     it.run.ID,
		Position:  pos,
		CityID:    &it.city.ID,
		NicheID:   it.nicheID(),
		DedupeKey: nullString(DedupeKey(proj.NormalizedPhone, proj.NormalizedName, &it.city.ID)),
		Raw:       res.Raw,
	}
	log := zap.L().With(zap.String("run_id", it.run.ID), zap.Int("position", pos))

	fail := func(reason string) (Record, Counters) {
		rec.Status = RecordError
		rec.Reason = reason
		rec.Projection = proj
		log.Warn("importer: search result rejected", zap.String("reason", reason))
		return rec, Counters{Errors: 1}
	}

	if proj.NormalizedName == "" {
		return fail(ReasonMissingName)
	}

	matches, err := s.matcher.FindMatches(ctx, company.Candidate{Phone: res.Phone}, company.RulePhone)
	if err == nil && len(matches) == 0 {
		matches, err = s.matcher.FindMatches(ctx,
			company.Candidate{Name: res.Name, CityID: &it.city.ID}, company.RuleNameCity)
	}
	if err != nil {
		return fail("match failed: " + err.Error())
	}

	var delta Counters
	var target *int64
	if len(matches) == 0 {
		if opts.DryRun {
			rec.Status = RecordInserted
			rec.Reason = ReasonDryRun
			rec.Projection = proj
			return rec, delta
		}
		c := &company.Company{
			TradeName:   proj.Name,
			Phone:       proj.Phone,
			Address:     proj.Address,
			Website:     proj.Website,
			CityID:      &it.city.ID,
			Source:      company.SourceSerpAPI,
			SourceRunID: &it.run.ID,
		}
		fields := quality.FromCompany(c, it.nicheID())
		c.QualityScore = quality.Score(fields)
		c.Status = quality.InitialStatus(fields, opts.ActivateCompanies)
		if err := s.registry.InsertCompany(ctx, c); err != nil {
			return fail("insert failed: " + err.Error())
		}
		rec.Status = RecordInserted
		rec.CompanyID = &c.ID
		target = &c.ID
		delta.Inserted = 1
	} else {
		existing := matches[0].Company
		proj.MatchedCompanyID = &existing.ID
		proj.MatchRule = string(matches[0].Rule)
		log.Debug("importer: search result matched",
			zap.Int64("company_id", existing.ID), zap.String("rule", proj.MatchRule))

		if opts.IgnoreDuplicates {
			rec.Status = RecordIgnored
			rec.Reason = ReasonDuplicateExisting
			rec.CompanyID = &existing.ID
			rec.Projection = proj
			return rec, Counters{Deduped: 1}
		}

		merged := existing
		changed := company.MergeFields(&merged, company.Fields{
			TradeName: proj.Name,
			Phone:     proj.Phone,
			Address:   proj.Address,
			Website:   proj.Website,
		}, opts.UpdateExisting)
		proj.ChangedFields = changed

		if len(changed) > 0 && !opts.DryRun {
			merged.Source = company.SourceSerpAPI
			merged.SourceRunID = &it.run.ID
			merged.QualityScore = quality.Score(quality.FromCompany(&merged, it.nicheID()))
			if err := s.registry.UpdateCompany(ctx, &merged); err != nil {
				return fail("update failed: " + err.Error())
			}
			rec.Status = RecordUpdated
			rec.CompanyID = &existing.ID
			delta.Updated = 1
		} else {
			rec.Status = RecordConflict
			rec.Reason = ReasonNoNewInformation
			if len(changed) > 0 {
				rec.Reason = ReasonDryRunUpdate
			}
			delta.Conflicts = 1
			delta.Deduped = 1
		}
		target = &existing.ID
	}

	if target != nil && it.niche != nil && !opts.DryRun {
		if err := s.registry.LinkCompanyToNiche(ctx, *target, it.niche.ID); err != nil {
			log.Warn("importer: niche link failed", zap.Int64("company_id", *target), zap.Error(err))
			rec.Reason = joinReason(rec.Reason, "niche link failed")
		}
	}
	rec.Projection = proj
	return rec, delta
}

func joinReason(reason, note string) string {
	if reason == "" {
		return note
	}
	return reason + "; " + note
}
