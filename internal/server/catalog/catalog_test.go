package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	free, ok := c.Plan("free")
	require.True(t, ok)
	assert.Equal(t, "1", free.Features["max_companions"])
	assert.Equal(t, "female", free.Features["voice_type"])
	assert.Empty(t, free.Prices)
	_, hasStyles := free.Features["style_options"]
	assert.False(t, hasStyles)

	pro, ok := c.Plan("pro")
	require.True(t, ok)
	assert.Equal(t, "-1", pro.Features["max_companions"])
	require.Len(t, pro.Prices, 2)
	assert.Equal(t, models.IntervalMonthly, pro.Prices[0].Interval)

	_, ok = c.Plan("enterprise")
	assert.False(t, ok)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "undeclared feature",
			doc:  "features: []\nplans:\n  - name: free\n    features:\n      max_companions: \"1\"\n",
			want: `undeclared feature "max_companions"`,
		},
		{
			name: "number not numeric",
			doc:  "features:\n  - name: n\n    type: number\nplans:\n  - name: p\n    features:\n      n: lots\n",
			want: `plan "p" feature "n"`,
		},
		{
			name: "bad interval",
			doc:  "features: []\nplans:\n  - name: p\n    prices:\n      - interval: weekly\n        currency: usd\n        price_cents: 1\n",
			want: `unknown interval "weekly"`,
		},
		{
			name: "bad feature type",
			doc:  "features:\n  - name: d\n    type: date\nplans: []\n",
			want: `unknown type "date"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(strings.NewReader("features: []\nplans: []\ncoupons: []\n"))
	assert.ErrorContains(t, err, "decode catalog")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  - name: b\n    type: boolean\nplans:\n  - name: free\n    features:\n      b: \"true\"\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Plans, 1)

	c, err = LoadFile("")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(c.Plans), 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
