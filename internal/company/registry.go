package company

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by updates that match no company row.
var ErrNotFound = eris.New("company not found")

// CityCatalog resolves cities. The catalog is read-only for imports.
type CityCatalog interface {
	GetCity(ctx context.Context, id int64) (*City, error)
	FindCitiesByKey(ctx context.Context, nameKey string) ([]City, error)
}

// NicheCatalog resolves niches and creates unseen labels on demand.
type NicheCatalog interface {
	GetNiche(ctx context.Context, id int64) (*Niche, error)
	FindNicheByKey(ctx context.Context, labelKey string) (*Niche, error)
	// EnsureNiche returns the niche whose key matches label, creating it if absent.
	EnsureNiche(ctx context.Context, label string) (*Niche, error)
}

// Registry is the company storage the import pipeline reads and mutates.
// Get* lookups return (nil, nil) when the row does not exist.
type Registry interface {
	CityCatalog
	NicheCatalog

	// Lookups by normalized identity. A non-nil cityID restricts the search
	// to that city.
	FindByNormalizedPhone(ctx context.Context, digits string, cityID *int64, limit int) ([]Company, error)
	FindByNormalizedWebsite(ctx context.Context, websiteKey string, cityID *int64, limit int) ([]Company, error)
	FindByNormalizedNameAndCity(ctx context.Context, name string, cityID *int64, limit int) ([]Company, error)
	// FindByNormalizedNameAndAddress filters on both keys before the limit
	// applies, so a common name cannot crowd out the address match.
	FindByNormalizedNameAndAddress(ctx context.Context, name, address string, cityID *int64, limit int) ([]Company, error)

	GetCompany(ctx context.Context, id int64) (*Company, error)
	InsertCompany(ctx context.Context, c *Company) error
	UpdateCompany(ctx context.Context, c *Company) error
	// LinkCompanyToNiche is idempotent: linking twice is not an error.
	LinkCompanyToNiche(ctx context.Context, companyID, nicheID int64) error
	ListCompaniesByRun(ctx context.Context, runID string) ([]Company, error)
}
