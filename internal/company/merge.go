package company

import "strings"

// Fields carries the listing attributes an import may write to a company.
type Fields struct {
	TradeName string
	Phone     string
	WhatsApp  string
	Address   string
	Website   string
}

// MergeFields applies incoming values to c field by field. A field is
// overwritten only when overwrite is set or the existing value is empty,
// and only when the incoming value is non-empty and actually different.
// It returns the names of the fields that changed.
func MergeFields(c *Company, in Fields, overwrite bool) []string {
	var changed []string
	apply := func(name string, dst *string, v string) {
		v = strings.TrimSpace(v)
		if v == "" || v == *dst {
			return
		}
		if strings.TrimSpace(*dst) != "" && !overwrite {
			return
		}
		*dst = v
		changed = append(changed, name)
	}

	apply("trade_name", &c.TradeName, in.TradeName)
	apply("phone", &c.Phone, in.Phone)
	apply("whatsapp", &c.WhatsApp, in.WhatsApp)
	apply("address", &c.Address, in.Address)
	apply("website", &c.Website, in.Website)

	if len(changed) > 0 {
		c.Normalize()
	}
	return changed
}
