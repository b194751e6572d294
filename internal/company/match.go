package company

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// MaxMatches caps the number of companies FindMatches returns.
const MaxMatches = 25

// Rule is one exact-after-normalization identity test.
type Rule string

// Matching rules. No rule uses fuzzy distance: a missed duplicate surfaces
// later as a conflict, a false merge silently corrupts two businesses.
const (
	// RulePhone matches the candidate phone against phone and whatsapp.
	RulePhone Rule = "phone"
	// RuleWebsite matches the scheme/case/slash-insensitive website.
	RuleWebsite Rule = "website"
	// RuleNameAddress needs both normalized name and address to match.
	RuleNameAddress Rule = "name_address"
	// RuleNameCity matches normalized name within the candidate's city.
	RuleNameCity Rule = "name_city"
)

// DefaultRules is the rule set used when FindMatches is given none.
var DefaultRules = []Rule{RulePhone, RuleWebsite, RuleNameAddress}

// Candidate is the raw identity of a listing to match.
type Candidate struct {
	Name     string
	Phone    string
	WhatsApp string
	Address  string
	Website  string
	// CityID restricts every rule to one city when set.
	CityID *int64
}

// Match is an existing company together with the rule that found it.
type Match struct {
	Company Company
	Rule    Rule
}

// Matcher finds registry companies that plausibly are the candidate.
type Matcher struct {
	registry Registry
}

// NewMatcher creates a Matcher over the given registry.
func NewMatcher(registry Registry) *Matcher {
	return &Matcher{registry: registry}
}

// FindMatches evaluates rules in order and OR-combines their hits. Results
// keep rule order (most specific identity first), are de-duplicated by id
// and capped at MaxMatches.
func (m *Matcher) FindMatches(ctx context.Context, c Candidate, rules ...Rule) ([]Match, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}

	seen := make(map[int64]bool)
	var out []Match
	add := func(rule Rule, companies []Company) {
		for _, co := range companies {
			if len(out) >= MaxMatches || seen[co.ID] {
				continue
			}
			seen[co.ID] = true
			out = append(out, Match{Company: co, Rule: rule})
		}
	}

	for _, rule := range rules {
		if len(out) >= MaxMatches {
			break
		}
		found, err := m.apply(ctx, rule, c)
		if err != nil {
			return nil, eris.Wrapf(err, "match: rule %s", rule)
		}
		if len(found) > 0 {
			zap.L().Debug("match: rule hit",
				zap.String("rule", string(rule)),
				zap.String("name", c.Name),
				zap.Int("hits", len(found)),
			)
		}
		add(rule, found)
	}
	return out, nil
}

func (m *Matcher) apply(ctx context.Context, rule Rule, c Candidate) ([]Company, error) {
	switch rule {
	case RulePhone:
		var hits []Company
		for _, p := range []string{c.Phone, c.WhatsApp} {
			digits := normalize.PhoneDigits(p)
			if digits == "" {
				continue
			}
			found, err := m.registry.FindByNormalizedPhone(ctx, digits, c.CityID, MaxMatches)
			if err != nil {
				return nil, err
			}
			hits = append(hits, found...)
		}
		return hits, nil

	case RuleWebsite:
		key := normalize.WebsiteKey(c.Website)
		if key == "" {
			return nil, nil
		}
		return m.registry.FindByNormalizedWebsite(ctx, key, c.CityID, MaxMatches)

	case RuleNameAddress:
		name := normalize.Name(c.Name)
		addr := normalize.Address(c.Address)
		if name == "" || addr == "" {
			return nil, nil
		}
		return m.registry.FindByNormalizedNameAndAddress(ctx, name, addr, c.CityID, MaxMatches)

	case RuleNameCity:
		name := normalize.Name(c.Name)
		if name == "" || c.CityID == nil {
			return nil, nil
		}
		return m.registry.FindByNormalizedNameAndCity(ctx, name, c.CityID, MaxMatches)

	default:
		return nil, eris.Errorf("unknown rule %q", rule)
	}
}
