package company

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeFields(t *testing.T) {
	tests := []struct {
		name      string
		existing  Company
		in        Fields
		overwrite bool
		want      []string
		wantPhone string
	}{
		{
			name:      "fills empty field",
			existing:  Company{TradeName: "A"},
			in:        Fields{Phone: "11 1234-5678"},
			want:      []string{"phone"},
			wantPhone: "11 1234-5678",
		},
		{
			name:      "keeps existing without overwrite",
			existing:  Company{TradeName: "A", Phone: "11 0000-0000"},
			in:        Fields{Phone: "11 1234-5678"},
			wantPhone: "11 0000-0000",
		},
		{
			name:      "overwrites when allowed",
			existing:  Company{TradeName: "A", Phone: "11 0000-0000"},
			in:        Fields{Phone: "11 1234-5678"},
			overwrite: true,
			want:      []string{"phone"},
			wantPhone: "11 1234-5678",
		},
		{
			name:      "ignores empty incoming",
			existing:  Company{TradeName: "A", Phone: "11 0000-0000"},
			in:        Fields{Phone: "  "},
			overwrite: true,
			wantPhone: "11 0000-0000",
		},
		{
			name:      "identical value is no change",
			existing:  Company{TradeName: "A", Phone: "x"},
			in:        Fields{TradeName: "A", Phone: "x"},
			overwrite: true,
			wantPhone: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.existing
			got := MergeFields(&c, tt.in, tt.overwrite)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPhone, c.Phone)
		})
	}
}

func TestMergeFields_RecomputesNormalized(t *testing.T) {
	c := Company{TradeName: "A"}
	MergeFields(&c, Fields{Website: "https://www.site.com/"}, false)
	assert.Equal(t, "site.com", c.NormalizedWebsite)
	assert.Equal(t, "a", c.NormalizedName)
}
