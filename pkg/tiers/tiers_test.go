package tiers_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/pkg/tiers"
)

func TestDefaultHierarchy(t *testing.T) {
	p := tiers.Default()
	list := p.List()
	require.Len(t, list, 4)
	assert.Equal(t, "landing", list[0].Name)
	assert.True(t, p.Adjacent("landing", "refined"))
	assert.True(t, p.Adjacent("curated", "trusted"))
	assert.False(t, p.Adjacent("landing", "curated"))
}

func TestNewRejectsUnknownUpstream(t *testing.T) {
	_, err := tiers.New([]tiers.Tier{
		{Name: "landing"},
		{Name: "refined", WriteFrom: "bronze"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestNewRejectsCycle(t *testing.T) {
	_, err := tiers.New([]tiers.Tier{
		{Name: "a", WriteFrom: "b"},
		{Name: "b", WriteFrom: "a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewRejectsSelfPromotion(t *testing.T) {
	_, err := tiers.New([]tiers.Tier{{Name: "landing", WriteFrom: "landing"}})
	require.Error(t, err)
}

func TestAccessChecksFailClosed(t *testing.T) {
	p, err := tiers.New([]tiers.Tier{
		{Name: "landing", Readers: []string{"etl"}},
		{Name: "refined", WriteFrom: "landing", Writers: []string{"etl"}},
	})
	require.NoError(t, err)

	assert.True(t, p.CanRead("landing", "etl"))
	assert.False(t, p.CanRead("landing", "analyst"))
	assert.False(t, p.CanRead("landing", ""), "empty principal never reads")
	assert.False(t, p.CanRead("bronze", "etl"), "unknown tier never reads")
	assert.True(t, p.CanWrite("refined", "etl"))
	assert.False(t, p.CanWrite("landing", "etl"), "no writers configured means nobody writes")
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - name: landing
    location: s3://lake/landing
    readers: [etl]
  - name: refined
    location: s3://lake/refined
    write_from: landing
    readers: [etl, analyst]
    writers: [etl]
`), 0o644))

	p, err := tiers.Load(path)
	require.NoError(t, err)
	tier, ok := p.Get("refined")
	require.True(t, ok)
	assert.Equal(t, "s3://lake/refined", tier.Location)
	assert.Equal(t, "landing", tier.WriteFrom)
	assert.True(t, p.CanRead("refined", "analyst"))
}
