// Package company defines the registry entities consumed by the import
// pipeline and the dedup matcher that finds existing companies for a
// candidate listing.
package company

import (
	"time"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// Status is the lifecycle state of a registry company.
type Status string

// Company statuses.
const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Source attributes a company to the channel that created or last fed it.
type Source string

// Known sources.
const (
	SourceSerpAPI Source = "serpapi"
	SourceManual  Source = "manual"
	SourceClaimed Source = "claimed"
)

// Company is a registry entry.
type Company struct { //nolint:revive // stutters but reads best at call sites
	ID                 int64     `json:"id" db:"id"`
	TradeName          string    `json:"trade_name" db:"trade_name"`
	NormalizedName     string    `json:"normalized_name" db:"normalized_name"`
	Phone              string    `json:"phone,omitempty" db:"phone"`
	NormalizedPhone    string    `json:"normalized_phone,omitempty" db:"normalized_phone"`
	WhatsApp           string    `json:"whatsapp,omitempty" db:"whatsapp"`
	NormalizedWhatsApp string    `json:"-" db:"normalized_whatsapp"`
	Address            string    `json:"address,omitempty" db:"address"`
	Website            string    `json:"website,omitempty" db:"website"`
	NormalizedWebsite  string    `json:"-" db:"normalized_website"`
	NormalizedAddress  string    `json:"-" db:"normalized_address"`
	CityID             *int64    `json:"city_id,omitempty" db:"city_id"`
	Status             Status    `json:"status" db:"status"`
	QualityScore       int       `json:"quality_score" db:"quality_score"`
	Source             Source    `json:"source" db:"source"`
	SourceRunID        *string   `json:"source_run_id,omitempty" db:"source_run_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Normalize recomputes the derived comparison columns from the raw fields.
// Stores call it on every write.
func (c *Company) Normalize() {
	c.NormalizedName = normalize.Name(c.TradeName)
	c.NormalizedPhone = normalize.PhoneDigits(c.Phone)
	c.NormalizedWhatsApp = normalize.PhoneDigits(c.WhatsApp)
	c.NormalizedWebsite = normalize.WebsiteKey(c.Website)
	c.NormalizedAddress = normalize.Address(c.Address)
}

// City is a closed-vocabulary catalog entry. Imports never create cities.
type City struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	State   string `json:"state" db:"state"`
	NameKey string `json:"-" db:"name_key"`
}

// Niche is an open-vocabulary category, created on first sight.
type Niche struct {
	ID       int64  `json:"id" db:"id"`
	Label    string `json:"label" db:"label"`
	LabelKey string `json:"-" db:"label_key"`
}
