package broker_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/broker"
)

func issueServer(t *testing.T, anchor *fakeAnchor) *httptest.Server {
	t.Helper()
	svc := newService(t, anchor, &captureAudit{})
	r := chi.NewRouter()
	broker.RegisterHTTP(r, svc)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func issue(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/credentials", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIssueHTTPSuccess(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{})

	resp := issue(t, srv, `{"requestorIdentity":"alice-key","ttlMinutesRequested":200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g broker.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.Equal(t, 3600, g.TTLSeconds, "200 minutes clamps to the 60 minute cap")
	assert.Equal(t, "Bearer", g.TokenType)
	assert.Equal(t, "alice-data", g.Resources.DataChannel)
	assert.NotEmpty(t, g.Credentials.SessionToken)
}

func TestIssueHTTPExplicitZeroTTLClampsToMinimum(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{})

	resp := issue(t, srv, `{"requestorIdentity":"alice-key","ttlMinutesRequested":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g broker.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.Equal(t, 900, g.TTLSeconds, "an explicit zero is a request and lands on the minimum, not the default")
}

func TestIssueHTTPOmittedTTLGetsDefault(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{})

	resp := issue(t, srv, `{"requestorIdentity":"alice-key"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g broker.Grant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.Equal(t, 1800, g.TTLSeconds, "only an absent field means no preference")
}

func TestIssueHTTPUnknownTenant(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{})

	resp := issue(t, srv, `{"requestorIdentity":"mallory","ttlMinutesRequested":30}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var prob map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prob))
	assert.Contains(t, prob["type"], "unknown-tenant")
}

func TestIssueHTTPUpstreamFailure(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{fail: true})

	resp := issue(t, srv, `{"requestorIdentity":"alice-key","ttlMinutesRequested":30}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var prob map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prob))
	assert.Contains(t, prob["type"], "upstream-assume-failure")
	assert.NotContains(t, prob, "credentials", "no credential material on failure paths")
}

func TestIssueHTTPHeaderIdentity(t *testing.T) {
	srv := issueServer(t, &fakeAnchor{})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/credentials", bytes.NewBufferString(`{"ttlMinutesRequested":30}`))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "alice-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
