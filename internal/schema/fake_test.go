package schema

import (
	"context"
	"fmt"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// fakeCatalog implements Catalogs in memory.
type fakeCatalog struct {
	cities      []company.City
	niches      []company.Niche
	ensureCalls []string
	findErr     error
}

func newFakeCatalog() *fakeCatalog { return &fakeCatalog{} }

func (f *fakeCatalog) addCity(name, state string) int64 {
	id := int64(len(f.cities) + 1)
	f.cities = append(f.cities, company.City{ID: id, Name: name, State: state, NameKey: normalize.Key(name)})
	return id
}

func (f *fakeCatalog) addNiche(label string) int64 {
	id := int64(len(f.niches) + 100)
	f.niches = append(f.niches, company.Niche{ID: id, Label: label, LabelKey: normalize.Key(label)})
	return id
}

func (f *fakeCatalog) GetCity(_ context.Context, id int64) (*company.City, error) {
	for _, c := range f.cities {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) FindCitiesByKey(_ context.Context, key string) ([]company.City, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []company.City
	for _, c := range f.cities {
		if c.NameKey == key {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetNiche(_ context.Context, id int64) (*company.Niche, error) {
	for _, n := range f.niches {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) FindNicheByKey(_ context.Context, key string) (*company.Niche, error) {
	for _, n := range f.niches {
		if n.LabelKey == key {
			return &n, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) EnsureNiche(ctx context.Context, label string) (*company.Niche, error) {
	f.ensureCalls = append(f.ensureCalls, label)
	if n, _ := f.FindNicheByKey(ctx, normalize.Key(label)); n != nil {
		return n, nil
	}
	if normalize.Key(label) == "" {
		return nil, fmt.Errorf("empty label")
	}
	id := f.addNiche(label)
	return f.GetNiche(ctx, id)
}
