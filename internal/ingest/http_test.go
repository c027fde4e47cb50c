package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/buffer"
	"nexus/internal/ingest"
	"nexus/pkg/grant"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/middleware"
	"nexus/pkg/tenants"
)

func newServer(t *testing.T, signer *grant.Signer) (*httptest.Server, *buffer.Buffer) {
	t.Helper()
	met := metrics.New("test", prometheus.NewRegistry())
	buf := buffer.New(buffer.Options{MaxRecords: 100, MaxAge: time.Hour}, &nullSink{}, nil, nil, met, logger.Nop())
	prov := tenants.NewMemoryProvider(logger.Nop(), []tenants.Tenant{alice(), bob()})
	router := ingest.NewRouter(buf, prov, met, logger.Nop())

	r := chi.NewRouter()
	r.Use(middleware.Credential(signer))
	ingest.RegisterHTTP(r, router)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, buf
}

func submit(t *testing.T, srv *httptest.Server, token, channel, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/channels/"+channel+"/records", bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubmitHTTPAccepted(t *testing.T) {
	signer := grant.NewSigner("shared")
	srv, buf := newServer(t, signer)

	token, _, err := signer.Sign(alice(), 30*time.Minute)
	require.NoError(t, err)

	resp := submit(t, srv, token, "alice-data", `{"partitionKey":"drone-1","payload":{"sequence":1}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack ingest.Ack
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "alice-data", ack.Channel)
	assert.Equal(t, 1, buf.Pending("alice-data"))
}

func TestSubmitHTTPMissingCredential(t *testing.T) {
	srv, _ := newServer(t, grant.NewSigner("shared"))
	resp := submit(t, srv, "", "alice-data", `{"payload":{}}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitHTTPExpiredCredential(t *testing.T) {
	signer := grant.NewSigner("shared")
	srv, _ := newServer(t, signer)

	token, _, err := signer.Sign(alice(), -time.Minute)
	require.NoError(t, err)

	resp := submit(t, srv, token, "alice-data", `{"payload":{}}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestSubmitHTTPScopeViolation(t *testing.T) {
	signer := grant.NewSigner("shared")
	srv, buf := newServer(t, signer)

	token, _, err := signer.Sign(alice(), 30*time.Minute)
	require.NoError(t, err)

	resp := submit(t, srv, token, "bob-data", `{"payload":{"sneaky":true}}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var prob map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prob))
	assert.Contains(t, prob["type"], "scope-violation")
	assert.Equal(t, 0, buf.Pending("bob-data"))
}

func TestSubmitHTTPMalformedBody(t *testing.T) {
	signer := grant.NewSigner("shared")
	srv, _ := newServer(t, signer)

	token, _, err := signer.Sign(alice(), 30*time.Minute)
	require.NoError(t, err)

	resp := submit(t, srv, token, "alice-data", `{"partitionKey":"k"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitHTTPDrainingBuffer(t *testing.T) {
	signer := grant.NewSigner("shared")
	srv, buf := newServer(t, signer)
	require.NoError(t, buf.Close(context.Background()))

	token, _, err := signer.Sign(alice(), 30*time.Minute)
	require.NoError(t, err)

	resp := submit(t, srv, token, "alice-data", `{"payload":{}}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "draining is retryable, not a caller error")
}
