package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureTables = `
tiers:
  - level: severe
    weight: 3
    keywords: [" Flood ", help]
  - level: low
    weight: 0.5
    keywords: [weather]
types:
  - type: flood
    keywords: [flood, water]
`

func TestParseTables(t *testing.T) {
	tables, err := ParseTables([]byte(fixtureTables))
	require.NoError(t, err)

	require.Len(t, tables.Tiers, 2)
	assert.Equal(t, domain.RiskCritical, tables.Tiers[0].Level)
	assert.Equal(t, []string{"flood", "help"}, tables.Tiers[0].Keywords)
	require.Len(t, tables.Types, 1)
	assert.Equal(t, domain.DisasterFlood, tables.Types[0].Type)
}

func TestParseTables_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad level":   "tiers:\n  - level: extreme\n    weight: 1\n    keywords: [x]\n",
		"zero weight": "tiers:\n  - level: high\n    weight: 0\n    keywords: [x]\n",
		"no tiers":    "types:\n  - type: flood\n    keywords: [x]\n",
		"bad type":    "tiers:\n  - level: high\n    weight: 1\n    keywords: [x]\ntypes:\n  - type: meteor\n    keywords: [x]\n",
		"bad yaml":    "tiers: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTables([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureTables), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Len(t, tables.Tiers, 2)

	_, err = LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultTablesValid(t *testing.T) {
	require.NoError(t, DefaultTables().Validate())
}
