package broker

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nexus/pkg/audit"
	"nexus/pkg/grant"
	"nexus/pkg/metrics"
	"nexus/pkg/tenants"
	"nexus/pkg/trustanchor"
)

// Grant is the full issuance result returned to the producer: the signed
// bearer token, the lease window, the resource handles to target, and the
// temporary credential triple minted by the trust anchor.
type Grant struct {
	Token       string                          `json:"token"`
	TokenType   string                          `json:"tokenType"`
	Tenant      string                          `json:"tenant"`
	Project     string                          `json:"project"`
	IssuedAt    time.Time                       `json:"issuedAt"`
	ExpiresAt   time.Time                       `json:"expires"`
	TTLSeconds  int                             `json:"ttlSeconds"`
	Resources   tenants.Resources               `json:"resources"`
	Credentials trustanchor.TemporaryCredential `json:"credentials"`
}

// Service issues scoped, time-boxed credentials. It holds no session
// state: every call resolves independently through the tenant provider
// and the trust anchor, so replicas need no coordination.
type Service struct {
	project      string
	minLease     time.Duration
	maxLease     time.Duration
	defaultLease time.Duration

	prov   tenants.Provider
	anchor trustanchor.Anchor
	signer *grant.Signer
	aud    audit.Recorder
	met    *metrics.Metrics
	log    *zap.SugaredLogger
}

type Options struct {
	Project      string
	MinLease     time.Duration
	MaxLease     time.Duration
	DefaultLease time.Duration
}

func NewService(opts Options, prov tenants.Provider, anchor trustanchor.Anchor, signer *grant.Signer, aud audit.Recorder, met *metrics.Metrics, log *zap.SugaredLogger) *Service {
	if opts.MinLease <= 0 {
		opts.MinLease = 15 * time.Minute
	}
	if opts.MaxLease <= 0 {
		opts.MaxLease = 60 * time.Minute
	}
	if opts.DefaultLease <= 0 {
		opts.DefaultLease = 30 * time.Minute
	}
	if opts.Project == "" {
		opts.Project = "nexus"
	}
	return &Service{
		project:      opts.Project,
		minLease:     opts.MinLease,
		maxLease:     opts.MaxLease,
		defaultLease: opts.DefaultLease,
		prov:         prov,
		anchor:       anchor,
		signer:       signer,
		aud:          aud,
		met:          met,
		log:          log,
	}
}

// ClampTTL folds a requested lease into the allowed range. Out-of-range
// values are moved to the nearest bound, never rejected: an explicit zero
// or negative request lands on the minimum, and the granted value goes
// back in the response. A nil request means "no preference" and gets the
// default, clamped the same way.
func (s *Service) ClampTTL(t tenants.Tenant, requested *time.Duration) time.Duration {
	req := s.defaultLease
	if requested != nil {
		req = *requested
	}
	max := s.maxLease
	if lc := t.LeaseCap(); lc > 0 && lc < max {
		max = lc
	}
	granted := req
	if granted < s.minLease {
		granted = s.minLease
	}
	if granted > max {
		granted = max
	}
	if granted != req && s.met != nil {
		s.met.TTLClampsTotal.Inc()
	}
	return granted
}

// IssueCredential resolves the requestor to a tenant, clamps the lease,
// assumes a role scoped to exactly the tenant's bound resources, and
// returns the grant. The audit record is written only once the outcome
// is known — after the trust-anchor call resolves, on success and on
// failure alike.
func (s *Service) IssueCredential(ctx context.Context, identity string, requested *time.Duration) (Grant, error) {
	t, err := s.prov.ResolveByAPIKey(ctx, identity)
	if err != nil {
		t, err = s.prov.ResolveByID(ctx, identity)
	}
	if err != nil {
		s.record(ctx, audit.NewEvent("", redactIdentity(identity), "", 0, audit.OutcomeDenied, "unknown tenant"))
		s.count("denied")
		return Grant{}, tenants.ErrUnknownTenant
	}

	ttl := s.ClampTTL(t, requested)
	session := sessionName(s.project, t.Slug)

	start := time.Now()
	cred, err := s.anchor.AssumeScopedRole(ctx, session, t.Resources.Handles(), ttl)
	if s.met != nil {
		s.met.AssumeRoleDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Structural, not transient: surface immediately, no retry.
		s.record(ctx, audit.NewEvent(t.ID, t.Slug, session, ttl, audit.OutcomeFailed, err.Error()))
		s.count("failed")
		return Grant{}, fmt.Errorf("assume scoped role: %w", err)
	}

	token, claims, err := s.signer.Sign(t, ttl)
	if err != nil {
		s.record(ctx, audit.NewEvent(t.ID, t.Slug, session, ttl, audit.OutcomeFailed, "grant signing: "+err.Error()))
		s.count("failed")
		return Grant{}, fmt.Errorf("sign grant: %w", err)
	}

	s.record(ctx, audit.NewEvent(t.ID, t.Slug, session, ttl, audit.OutcomeGranted, ""))
	s.count("granted")
	return Grant{
		Token:       token,
		TokenType:   "Bearer",
		Tenant:      t.Slug,
		Project:     s.project,
		IssuedAt:    claims.IssuedAt,
		ExpiresAt:   claims.ExpiresAt,
		TTLSeconds:  int(ttl.Seconds()),
		Resources:   t.Resources,
		Credentials: cred,
	}, nil
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.aud != nil {
		s.aud.Record(ctx, ev)
	}
}

func (s *Service) count(outcome string) {
	if s.met != nil {
		s.met.GrantsIssuedTotal.WithLabelValues(outcome).Inc()
	}
}

// redactIdentity fingerprints an unresolvable requestor identity for the
// audit trail. The raw value may be a mistyped live API key, so it never
// lands in logs or the audit table verbatim.
func redactIdentity(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return "sha256:" + hex.EncodeToString(sum[:6])
}

func sessionName(project, slug string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	name := fmt.Sprintf("%s-%s-%s", project, slug, hex.EncodeToString(b))
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
