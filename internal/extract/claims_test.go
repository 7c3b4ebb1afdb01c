package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/model"
)

func TestClaimExtractor_Currency(t *testing.T) {
	e := NewClaimExtractor()

	tests := []struct {
		text string
		want float64
	}{
		{"The site is worth $29.27M per year.", 29270000},
		{"Tourism brings in $25 million.", 25000000},
		{"A total of $1,200,000 was recorded.", 1200000},
		{"Estimates reach $3.2B globally.", 3200000000},
		{"Valued at USD 450K.", 450000},
		{"Roughly $5 billion in damages avoided.", 5000000000},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			claims := e.Extract(tt.text)
			require.Len(t, claims, 1)
			assert.Equal(t, model.ClaimKindCurrency, claims[0].Kind)
			assert.InDelta(t, tt.want, claims[0].Value, 1e-3)
		})
	}
}

func TestClaimExtractor_PercentAndRatio(t *testing.T) {
	e := NewClaimExtractor()

	claims := e.Extract("Fish biomass grew 463% and is 4.63x higher than in 1999, a 3:1 advantage.")
	require.Len(t, claims, 3)

	assert.Equal(t, model.ClaimKindPercent, claims[0].Kind)
	assert.Equal(t, 463.0, claims[0].Value)
	assert.Equal(t, "463%", claims[0].Text)

	assert.Equal(t, model.ClaimKindRatio, claims[1].Kind)
	assert.Equal(t, 4.63, claims[1].Value)
	assert.Equal(t, "4.63x", claims[1].Text)

	assert.Equal(t, model.ClaimKindRatio, claims[2].Kind)
	assert.Equal(t, 3.0, claims[2].Value)
}

func TestClaimExtractor_OrderAndDedupe(t *testing.T) {
	e := NewClaimExtractor()
	claims := e.Extract("Coverage rose 12.5 percent to $50M, then $50M again.")

	require.Len(t, claims, 2)
	assert.Equal(t, model.ClaimKindPercent, claims[0].Kind)
	assert.Equal(t, "$50M", claims[1].Text)
}

func TestClaimExtractor_IgnoresPlainNumbers(t *testing.T) {
	e := NewClaimExtractor()
	assert.Empty(t, e.Extract("The park was created in 1995 and covers 71 square kilometres."))
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount("$29.27M")
	require.True(t, ok)
	assert.InDelta(t, 29270000, v, 1e-3)

	v, ok = ParseAmount("1,200 thousand")
	require.True(t, ok)
	assert.InDelta(t, 1200000, v, 1e-9)

	_, ok = ParseAmount("AAA")
	assert.False(t, ok)

	_, ok = ParseAmount("12 parsecs")
	assert.False(t, ok)
}
