package grant_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/pkg/grant"
	"nexus/pkg/tenants"
)

func tenant() tenants.Tenant {
	return tenants.Tenant{
		ID: "00000000-0000-0000-0000-00000000000a", Slug: "alice",
		Resources: tenants.Resources{
			DataChannel: "alice-data", MediaChannel: "alice-media", DeliveryTarget: "alice-landing",
		},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := grant.NewSigner("shared-secret")
	token, claims, err := signer.Sign(tenant(), 30*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, got.ID)
	assert.Equal(t, tenant().ID, got.TenantID)
	assert.Equal(t, "alice", got.Slug)
	assert.Equal(t, tenant().Resources, got.Resources)
	assert.WithinDuration(t, claims.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, _, err := grant.NewSigner("secret-a").Sign(tenant(), 30*time.Minute)
	require.NoError(t, err)

	_, err = grant.NewSigner("secret-b").Verify(token)
	assert.ErrorIs(t, err, grant.ErrInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := grant.NewSigner("shared-secret")
	token, _, err := signer.Sign(tenant(), -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, grant.ErrExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := grant.NewSigner("shared-secret").Verify("not-a-token")
	assert.ErrorIs(t, err, grant.ErrInvalid)
}
