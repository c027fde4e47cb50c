// Package trustanchor wraps the external role-assumption primitive that
// mints temporary scoped credentials. The broker treats it as opaque and
// synchronous; failures are surfaced without retry.
package trustanchor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAssumeFailure wraps any denial or error from the trust anchor. Role
// assumption failures are usually structural (misconfigured role or scope),
// so callers surface them immediately instead of retrying.
var ErrAssumeFailure = errors.New("upstream assume failure")

// TemporaryCredential is the opaque credential triple minted by the anchor.
type TemporaryCredential struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// Anchor is the external collaborator contract: assume a role scoped to
// exactly the given resource handles, for the given lease.
type Anchor interface {
	AssumeScopedRole(ctx context.Context, sessionName string, handles []string, ttl time.Duration) (TemporaryCredential, error)
}

// httpAnchor calls an STS-like HTTP endpoint with a bounded timeout.
type httpAnchor struct {
	url    string
	client *http.Client
}

func NewHTTP(url string, timeout time.Duration) Anchor {
	return &httpAnchor{url: url, client: &http.Client{Timeout: timeout}}
}

func (a *httpAnchor) AssumeScopedRole(ctx context.Context, sessionName string, handles []string, ttl time.Duration) (TemporaryCredential, error) {
	body, _ := json.Marshal(map[string]any{
		"sessionName": sessionName,
		"resources":   handles,
		"ttlSeconds":  int(ttl.Seconds()),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return TemporaryCredential{}, fmt.Errorf("%w: %v", ErrAssumeFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return TemporaryCredential{}, fmt.Errorf("%w: %v", ErrAssumeFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TemporaryCredential{}, fmt.Errorf("%w: anchor returned %d", ErrAssumeFailure, resp.StatusCode)
	}
	var cred TemporaryCredential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return TemporaryCredential{}, fmt.Errorf("%w: decode: %v", ErrAssumeFailure, err)
	}
	return cred, nil
}

// localAnchor mints deterministic-shape credentials locally. Dev only;
// nothing downstream verifies them.
type localAnchor struct{}

func NewLocal() Anchor { return localAnchor{} }

func (localAnchor) AssumeScopedRole(ctx context.Context, sessionName string, handles []string, ttl time.Duration) (TemporaryCredential, error) {
	if len(handles) == 0 {
		return TemporaryCredential{}, fmt.Errorf("%w: empty resource scope", ErrAssumeFailure)
	}
	return TemporaryCredential{
		AccessKeyID:     "NEXUS" + randHex(8),
		SecretAccessKey: randHex(20),
		SessionToken:    randHex(32),
		Expiration:      time.Now().Add(ttl),
	}, nil
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
