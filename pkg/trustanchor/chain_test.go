package trustanchor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/pkg/trustanchor"
)

func TestChainValidAcyclic(t *testing.T) {
	chain, err := trustanchor.NewChain([]trustanchor.Role{
		{Name: "broker", Assumes: []string{"ingest-writer"}},
		{Name: "ingest-writer", Assumes: []string{"landing-writer"}},
		{Name: "landing-writer"},
	})
	require.NoError(t, err)
	assert.True(t, chain.MayAssume("broker", "ingest-writer"))
	assert.False(t, chain.MayAssume("broker", "landing-writer"), "only declared edges, no transitive assumption")
	assert.False(t, chain.MayAssume("landing-writer", "broker"))
}

func TestChainRejectsCycle(t *testing.T) {
	_, err := trustanchor.NewChain([]trustanchor.Role{
		{Name: "a", Assumes: []string{"b"}},
		{Name: "b", Assumes: []string{"c"}},
		{Name: "c", Assumes: []string{"a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestChainRejectsUnknownEdge(t *testing.T) {
	_, err := trustanchor.NewChain([]trustanchor.Role{
		{Name: "a", Assumes: []string{"ghost"}},
	})
	require.Error(t, err)
}

func TestLocalAnchorMintsCredential(t *testing.T) {
	anchor := trustanchor.NewLocal()
	cred, err := anchor.AssumeScopedRole(context.Background(), "nexus-alice-abcd", []string{"alice-data"}, 30*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.AccessKeyID)
	assert.NotEmpty(t, cred.SessionToken)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), cred.Expiration, time.Minute)
}

func TestLocalAnchorRejectsEmptyScope(t *testing.T) {
	_, err := trustanchor.NewLocal().AssumeScopedRole(context.Background(), "s", nil, time.Minute)
	assert.ErrorIs(t, err, trustanchor.ErrAssumeFailure)
}
