// Package grant mints and verifies the bearer credential handed to
// producers. The grant is a signed token carrying the tenant and its
// scoped resource handles, so the router can verify scope and expiry
// statelessly, without calling back into the broker.
package grant

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"nexus/pkg/tenants"
)

var (
	ErrExpired = errors.New("grant expired")
	ErrInvalid = errors.New("grant invalid")
)

const (
	claimTenantID  = "tenant_id"
	claimSlug      = "tenant"
	claimResources = "resources"
)

// Claims is the verified content of a grant token.
type Claims struct {
	ID        string // jti
	TenantID  string
	Slug      string
	Resources tenants.Resources
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer signs and verifies grant tokens with a shared HS256 secret.
// Broker and router must be configured with the same secret.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer. An empty secret gets a random ephemeral key:
// fine for a single dev process, useless across replicas.
func NewSigner(secret string) *Signer {
	if secret == "" {
		b := make([]byte, 32)
		_, _ = rand.Read(b)
		return &Signer{secret: b}
	}
	return &Signer{secret: []byte(secret)}
}

// Sign mints a grant token for the tenant, valid for ttl from now.
func (s *Signer) Sign(t tenants.Tenant, ttl time.Duration) (token string, claims Claims, err error) {
	now := time.Now().UTC().Truncate(time.Second)
	claims = Claims{
		ID:        uuid.NewString(),
		TenantID:  t.ID,
		Slug:      t.Slug,
		Resources: t.Resources,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	tok, err := jwt.NewBuilder().
		JwtID(claims.ID).
		IssuedAt(claims.IssuedAt).
		Expiration(claims.ExpiresAt).
		Claim(claimTenantID, t.ID).
		Claim(claimSlug, t.Slug).
		Claim(claimResources, map[string]string{
			"dataChannel":    t.Resources.DataChannel,
			"mediaChannel":   t.Resources.MediaChannel,
			"deliveryTarget": t.Resources.DeliveryTarget,
		}).
		Build()
	if err != nil {
		return "", Claims{}, err
	}
	raw, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", Claims{}, err
	}
	return string(raw), claims, nil
}

// Verify checks signature and validity window and returns the claims.
// An expired token is ErrExpired; anything else wrong is ErrInvalid.
func (s *Signer) Verify(token string) (Claims, error) {
	tok, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, s.secret), jwt.WithValidate(true))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c := Claims{
		ID:        tok.JwtID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(claimTenantID); ok {
		c.TenantID, _ = v.(string)
	}
	if v, ok := tok.Get(claimSlug); ok {
		c.Slug, _ = v.(string)
	}
	if v, ok := tok.Get(claimResources); ok {
		if m, ok := v.(map[string]any); ok {
			c.Resources.DataChannel, _ = m["dataChannel"].(string)
			c.Resources.MediaChannel, _ = m["mediaChannel"].(string)
			c.Resources.DeliveryTarget, _ = m["deliveryTarget"].(string)
		}
	}
	if c.TenantID == "" {
		return Claims{}, fmt.Errorf("%w: missing tenant claim", ErrInvalid)
	}
	return c, nil
}
