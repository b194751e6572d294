package schema

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// Validation error codes.
const (
	CodeNoRows         = "no_rows"
	CodeCityRequired   = "city_required"
	CodeNicheRequired  = "niche_required"
	CodeAmbiguousCity  = "ambiguous_city"
	CodeAmbiguousNiche = "ambiguous_niche"
	CodeInvalidRequest = "invalid_request"
)

// ValidationError rejects a whole upload before anything is persisted.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Row is the zero-based index of the offending row, -1 when the
	// error concerns the batch.
	Row int `json:"row"`
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%s: %s (row %d)", e.Code, e.Message, e.Row)
	}
	return e.Code + ": " + e.Message
}

func newValidationError(code, msg string, row int) *ValidationError {
	return &ValidationError{Code: code, Message: msg, Row: row}
}

// StageInput is an upload awaiting resolution.
type StageInput struct {
	Rows         []map[string]any
	Mapping      Mapping
	FixedCityID  *int64
	FixedNicheID *int64
	DryRun       bool
}

// ResolvedRow is one non-blank upload row after resolution.
type ResolvedRow struct {
	// Index is the row position in the original upload.
	Index     int
	Raw       map[string]any
	Values    map[Field]string
	CityID    *int64
	NicheID   *int64
	NicheKey  string
	Ambiguous bool
}

// Value returns the resolved text of field.
func (r *ResolvedRow) Value(f Field) string {
	return r.Values[f]
}

// Resolution is the staged view of an upload.
type Resolution struct {
	Rows []ResolvedRow
	// CityID and NicheID are the run-level targets: the fixed ids when
	// given, else the single id every row shares, else nil.
	CityID  *int64
	NicheID *int64
	// CreatedNiches lists the labels created during Commit.
	CreatedNiches []string
}

// Catalogs is the registry surface the resolver reads.
type Catalogs interface {
	company.CityCatalog
	company.NicheCatalog
}

// Resolver turns raw uploads into resolutions.
type Resolver struct {
	registry Catalogs
}

// NewResolver creates a Resolver over the registry catalogs.
func NewResolver(catalogs Catalogs) *Resolver {
	return &Resolver{registry: catalogs}
}

// Resolve normalizes headers, resolves fields, cities and niches, and
// validates the batch. Niches are created only after validation passes and
// never on dry runs.
func (r *Resolver) Resolve(ctx context.Context, in StageInput) (*Resolution, error) {
	cities := NewCityResolver(r.registry)
	niches := NewNicheResolver(r.registry)

	var rows []ResolvedRow
	for i, raw := range in.Rows {
		if IsBlank(raw) {
			continue
		}
		values := ResolveAll(NormalizeRow(raw), in.Mapping)
		rr := ResolvedRow{Index: i, Raw: raw, Values: values}

		if text := values[FieldCity]; text != "" {
			m, err := cities.Resolve(ctx, text)
			if err != nil {
				return nil, err
			}
			rr.CityID = m.ID
			rr.Ambiguous = m.Ambiguous
		}
		if rr.CityID == nil {
			rr.CityID = in.FixedCityID
		}

		if text := values[FieldNiche]; text != "" {
			key, err := niches.Plan(ctx, text)
			if err != nil {
				return nil, err
			}
			rr.NicheKey = key
		}
		rows = append(rows, rr)
	}

	if len(rows) == 0 {
		return nil, newValidationError(CodeNoRows, "upload has no rows", -1)
	}

	res := &Resolution{Rows: rows, CityID: in.FixedCityID, NicheID: in.FixedNicheID}
	if !in.DryRun {
		if err := validate(rows, in); err != nil {
			return nil, err
		}
		res.CreatedNiches = niches.Pending()
		if err := niches.Commit(ctx); err != nil {
			return nil, err
		}
	}

	for i := range res.Rows {
		rr := &res.Rows[i]
		if rr.NicheKey != "" {
			rr.NicheID = niches.ID(rr.NicheKey)
		}
		if rr.NicheID == nil {
			rr.NicheID = in.FixedNicheID
		}
	}
	if res.CityID == nil {
		res.CityID = sharedID(res.Rows, func(r ResolvedRow) *int64 { return r.CityID })
	}
	if res.NicheID == nil {
		res.NicheID = sharedID(res.Rows, func(r ResolvedRow) *int64 { return r.NicheID })
	}

	zap.L().Debug("schema: upload resolved",
		zap.Int("rows", len(res.Rows)),
		zap.Int("skipped_blank", len(in.Rows)-len(res.Rows)),
		zap.Bool("dry_run", in.DryRun),
	)
	return res, nil
}

// validate runs the batch checks in order: ambiguity, then presence.
func validate(rows []ResolvedRow, in StageInput) error {
	if in.FixedCityID == nil {
		seen := map[string]bool{}
		for _, r := range rows {
			if k := cityIdentity(r); k != "" {
				seen[k] = true
			}
		}
		if len(seen) > 1 {
			return newValidationError(CodeAmbiguousCity, "rows span more than one city and no fixed city was given", -1)
		}
	}
	if in.FixedNicheID == nil {
		seen := map[string]bool{}
		for _, r := range rows {
			if r.NicheKey != "" {
				seen[r.NicheKey] = true
			}
		}
		if len(seen) > 1 {
			return newValidationError(CodeAmbiguousNiche, "rows span more than one niche and no fixed niche was given", -1)
		}
	}

	for _, r := range rows {
		if r.CityID == nil {
			msg := "city required"
			if r.Ambiguous {
				msg = "city required: name matches more than one city"
			}
			return newValidationError(CodeCityRequired, msg, r.Index)
		}
	}
	for _, r := range rows {
		if r.NicheKey == "" && in.FixedNicheID == nil {
			return newValidationError(CodeNicheRequired, "niche required", r.Index)
		}
	}
	return nil
}

// cityIdentity names the city a row points at: its resolved id, else its
// folded text so two unknown names still count as two cities.
func cityIdentity(r ResolvedRow) string {
	if r.CityID != nil {
		return strconv.FormatInt(*r.CityID, 10)
	}
	if text := r.Values[FieldCity]; text != "" {
		name, uf := ParseCityText(text)
		return "text:" + normalize.Key(name) + "|" + uf
	}
	return ""
}

func sharedID(rows []ResolvedRow, get func(ResolvedRow) *int64) *int64 {
	var out *int64
	for _, r := range rows {
		id := get(r)
		if id == nil {
			return nil
		}
		if out != nil && *out != *id {
			return nil
		}
		out = id
	}
	return out
}
