// Package quality scores how complete a company listing is and decides
// whether it may go live without review.
package quality

import (
	"strings"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
)

// MinActivationScore is the lowest score at which a company may be
// activated automatically.
const MinActivationScore = 70

// Rubric weights.
const (
	weightName      = 20
	weightAddress   = 10
	weightCityNiche = 20
	weightPhone     = 20
	weightWhatsApp  = 30
	maxScore        = 100
	minScore        = 0
)

// Fields is the projection the scorer reads.
type Fields struct {
	Name     string
	Address  string
	Phone    string
	WhatsApp string
	CityID   *int64
	NicheID  *int64
}

// FromCompany projects a company plus an optional niche onto Fields.
func FromCompany(c *company.Company, nicheID *int64) Fields {
	return Fields{
		Name:     c.TradeName,
		Address:  c.Address,
		Phone:    c.Phone,
		WhatsApp: c.WhatsApp,
		CityID:   c.CityID,
		NicheID:  nicheID,
	}
}

// Breakdown returns the points awarded per rubric component.
func Breakdown(f Fields) map[string]int {
	out := map[string]int{}
	if present(f.Name) {
		out["name"] = weightName
	}
	if present(f.Address) {
		out["address"] = weightAddress
	}
	if f.CityID != nil && f.NicheID != nil {
		out["city_niche"] = weightCityNiche
	}
	if present(f.Phone) {
		out["phone"] = weightPhone
	}
	if present(f.WhatsApp) {
		out["whatsapp"] = weightWhatsApp
	}
	return out
}

// Score returns the completeness score in [0,100].
func Score(f Fields) int {
	total := 0
	for _, pts := range Breakdown(f) {
		total += pts
	}
	return min(max(total, minScore), maxScore)
}

// HasContact reports whether the listing can be reached by phone or whatsapp.
func HasContact(f Fields) bool {
	return present(f.Phone) || present(f.WhatsApp)
}

// CanActivate reports whether f clears the activation policy.
func CanActivate(f Fields) bool {
	return Score(f) >= MinActivationScore && HasContact(f)
}

// InitialStatus picks the status for a newly created company. Without an
// activation request every company starts pending; with one, only
// listings clearing CanActivate go live.
func InitialStatus(f Fields, activate bool) company.Status {
	if activate && CanActivate(f) {
		return company.StatusActive
	}
	return company.StatusPending
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
