package promotion_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/promotion"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/tiers"
)

func testPolicy(t *testing.T) *tiers.Policy {
	t.Helper()
	p, err := tiers.New([]tiers.Tier{
		{Name: "landing", Readers: []string{"etl"}},
		{Name: "refined", WriteFrom: "landing", Readers: []string{"etl", "analyst"}, Writers: []string{"etl"}},
		{Name: "curated", WriteFrom: "refined", Readers: []string{"analyst"}, Writers: []string{"analyst"}},
		{Name: "trusted", WriteFrom: "curated", Readers: []string{"steward"}, Writers: []string{"steward"}},
	})
	require.NoError(t, err)
	return p
}

func newService(t *testing.T, regoModule string) *promotion.Service {
	t.Helper()
	met := metrics.New("test", prometheus.NewRegistry())
	svc, err := promotion.NewService(context.Background(), testPolicy(t), regoModule, met, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestAuthorizedMoverAllowed(t *testing.T) {
	svc := newService(t, "")
	d := svc.CheckPromotion(context.Background(), "landing", "refined", "etl")
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reasons)
}

func TestMoverWithoutSourceReadDenied(t *testing.T) {
	svc := newService(t, "")
	// steward may write trusted but is not a curated reader
	d := svc.CheckPromotion(context.Background(), "curated", "trusted", "steward")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reasons, "mover may not read source tier")
}

func TestMoverWithoutDestWriteDenied(t *testing.T) {
	svc := newService(t, "")
	d := svc.CheckPromotion(context.Background(), "refined", "curated", "etl")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reasons, "mover may not write destination tier")
}

func TestNonAdjacentTiersDenied(t *testing.T) {
	svc := newService(t, "")
	d := svc.CheckPromotion(context.Background(), "landing", "curated", "analyst")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reasons, "tiers not adjacent in promotion order")
}

func TestDemotionDenied(t *testing.T) {
	svc := newService(t, "")
	d := svc.CheckPromotion(context.Background(), "refined", "landing", "etl")
	assert.False(t, d.Allowed)
}

func TestUnknownTierDenied(t *testing.T) {
	svc := newService(t, "")
	d := svc.CheckPromotion(context.Background(), "bronze", "refined", "etl")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reasons, "unknown source tier")
}

func TestRegoModuleCanOnlyDenyFurther(t *testing.T) {
	const module = `package nexus.promotion

default allow = false

allow {
	input.mover != "etl"
}
`
	svc := newService(t, module)

	// Table allows etl landing->refined, but the module denies etl outright.
	d := svc.CheckPromotion(context.Background(), "landing", "refined", "etl")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reasons, "denied by policy module")

	// The module alone cannot authorize a mover the table rejects.
	d = svc.CheckPromotion(context.Background(), "landing", "refined", "intruder")
	assert.False(t, d.Allowed)
}
