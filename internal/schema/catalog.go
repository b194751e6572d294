package schema

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// CityMatch is the outcome of resolving one city text.
type CityMatch struct {
	ID        *int64
	Ambiguous bool
}

// CityResolver resolves city text against the closed catalog. It never
// creates cities. Results are cached per text for the life of the resolver.
type CityResolver struct {
	catalog company.CityCatalog
	cache   map[string]CityMatch
}

// NewCityResolver creates a resolver scoped to one upload.
func NewCityResolver(catalog company.CityCatalog) *CityResolver {
	return &CityResolver{catalog: catalog, cache: make(map[string]CityMatch)}
}

// Resolve maps text to a catalog city. With a region code the match is on
// name and region; without one a name shared by several cities is
// reported ambiguous and left unresolved.
func (r *CityResolver) Resolve(ctx context.Context, text string) (CityMatch, error) {
	name, uf := ParseCityText(text)
	key := normalize.Key(name)
	if key == "" {
		return CityMatch{}, nil
	}
	cacheKey := key + "|" + uf
	if m, ok := r.cache[cacheKey]; ok {
		return m, nil
	}

	cities, err := r.catalog.FindCitiesByKey(ctx, key)
	if err != nil {
		return CityMatch{}, eris.Wrapf(err, "schema: resolve city %q", text)
	}
	if uf != "" {
		var inUF []company.City
		for _, c := range cities {
			if strings.EqualFold(c.State, uf) {
				inUF = append(inUF, c)
			}
		}
		cities = inUF
	}

	var m CityMatch
	switch len(cities) {
	case 0:
	case 1:
		id := cities[0].ID
		m.ID = &id
	default:
		m.Ambiguous = true
	}
	r.cache[cacheKey] = m
	return m, nil
}

// NicheResolver resolves niche labels against the open vocabulary. Plan
// only reads; Commit creates the labels that were not found.
type NicheResolver struct {
	catalog company.NicheCatalog
	labels  map[string]string // key -> first label seen
	ids     map[string]int64
}

// NewNicheResolver creates a resolver scoped to one upload.
func NewNicheResolver(catalog company.NicheCatalog) *NicheResolver {
	return &NicheResolver{
		catalog: catalog,
		labels:  make(map[string]string),
		ids:     make(map[string]int64),
	}
}

// Plan registers label and returns its key, looking up an existing niche
// without writing. An empty key means the label has no usable text.
func (r *NicheResolver) Plan(ctx context.Context, label string) (string, error) {
	key := normalize.Key(label)
	if key == "" {
		return "", nil
	}
	if _, ok := r.labels[key]; ok {
		return key, nil
	}
	r.labels[key] = normalize.Address(label)

	n, err := r.catalog.FindNicheByKey(ctx, key)
	if err != nil {
		return "", eris.Wrapf(err, "schema: lookup niche %q", label)
	}
	if n != nil {
		r.ids[key] = n.ID
	}
	return key, nil
}

// Pending returns the planned labels that do not exist yet.
func (r *NicheResolver) Pending() []string {
	var out []string
	for key, label := range r.labels {
		if _, ok := r.ids[key]; !ok {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// Commit creates every pending niche.
func (r *NicheResolver) Commit(ctx context.Context) error {
	for key, label := range r.labels {
		if _, ok := r.ids[key]; ok {
			continue
		}
		n, err := r.catalog.EnsureNiche(ctx, label)
		if err != nil {
			return eris.Wrapf(err, "schema: ensure niche %q", label)
		}
		r.ids[key] = n.ID
	}
	return nil
}

// ID returns the niche id for a planned key, nil while uncommitted.
func (r *NicheResolver) ID(key string) *int64 {
	id, ok := r.ids[key]
	if !ok {
		return nil
	}
	return &id
}
