// Package audit records credential issuance outcomes. There is no
// revocation path, so the audit trail is the only post-hoc accountability
// mechanism: every code path that determines an outcome emits exactly one
// event, after the trust-anchor call resolves, never speculatively.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// Event captures one issuance decision. Transport-agnostic so sinks can
// fan out.
type Event struct {
	ID          string
	TenantID    string
	TenantSlug  string
	SessionName string
	TTLGranted  time.Duration
	Outcome     Outcome
	Detail      string
	IssuedAt    time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// logRecorder writes events to the structured log. Always installed.
type logRecorder struct {
	log *zap.SugaredLogger
}

func NewLogRecorder(log *zap.SugaredLogger) Recorder { return &logRecorder{log: log} }

func (r *logRecorder) Record(ctx context.Context, ev Event) {
	r.log.Infow("audit",
		"id", ev.ID,
		"tenant", ev.TenantSlug,
		"tenant_id", ev.TenantID,
		"session", ev.SessionName,
		"ttl_sec", int(ev.TTLGranted.Seconds()),
		"outcome", string(ev.Outcome),
		"detail", ev.Detail,
	)
}

// pgRecorder appends events to the audit_events table. Insert-only and
// idempotent on the event id.
type pgRecorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewPostgresRecorder(pool *pgxpool.Pool, log *zap.SugaredLogger) Recorder {
	return &pgRecorder{pool: pool, log: log}
}

func (r *pgRecorder) Record(ctx context.Context, ev Event) {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_events (id, tenant_id, tenant_slug, session_name, ttl_granted_sec, outcome, detail, issued_at)
VALUES ($1, NULLIF($2,'')::uuid, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.TenantID, ev.TenantSlug, ev.SessionName, int(ev.TTLGranted.Seconds()), string(ev.Outcome), ev.Detail, ev.IssuedAt)
	if err != nil {
		// The outcome already happened; losing the durable copy is loggable
		// but must not fail the request.
		r.log.Errorw("audit insert", "err", err, "id", ev.ID)
	}
}

type multiRecorder []Recorder

// Multi fans an event out to several sinks.
func Multi(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Record(ctx, ev)
	}
}

// NewEvent fills the generated fields.
func NewEvent(tenantID, slug, session string, ttl time.Duration, outcome Outcome, detail string) Event {
	return Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TenantSlug:  slug,
		SessionName: session,
		TTLGranted:  ttl,
		Outcome:     outcome,
		Detail:      detail,
		IssuedAt:    time.Now().UTC(),
	}
}
