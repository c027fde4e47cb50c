// Package ingest routes authenticated producer records into the correct
// per-tenant buffered channel. The router is stateless per call: scope
// and expiry come from the verified grant, the buffer owns all state.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"nexus/internal/buffer"
	"nexus/pkg/grant"
	"nexus/pkg/metrics"
	"nexus/pkg/tenants"
)

// ErrScopeViolation is returned when the target channel is not inside the
// grant's scoped resources. Fail closed: no re-routing to the channel the
// caller "probably meant".
var ErrScopeViolation = errors.New("scope violation")

// Ack acknowledges a synchronous enqueue. It is not a durability
// guarantee; durability happens at flush.
type Ack struct {
	Channel      string    `json:"channel"`
	PartitionKey string    `json:"partitionKey"`
	AcceptedAt   time.Time `json:"acceptedAt"`
}

type Router struct {
	buf  *buffer.Buffer
	prov tenants.Provider
	met  *metrics.Metrics
	log  *zap.SugaredLogger
}

func NewRouter(buf *buffer.Buffer, prov tenants.Provider, met *metrics.Metrics, log *zap.SugaredLogger) *Router {
	return &Router{buf: buf, prov: prov, met: met, log: log}
}

// Submit admits one record into the channel named by target. The grant
// middleware already checked signature and expiry; here the target must
// match one of the grant's scoped channels exactly.
func (r *Router) Submit(ctx context.Context, claims grant.Claims, target, partitionKey string, payload json.RawMessage) (Ack, error) {
	var kind tenants.ChannelKind
	switch target {
	case claims.Resources.DataChannel:
		kind = tenants.ChannelData
	case claims.Resources.MediaChannel:
		kind = tenants.ChannelMedia
	default:
		r.log.Warnw("scope violation", "tenant", claims.Slug, "target", target)
		r.reject("scope_violation")
		return Ack{}, ErrScopeViolation
	}

	if partitionKey == "" {
		partitionKey = r.derivePartitionKey(ctx, claims, payload)
	}

	rec := buffer.Record{
		PartitionKey: partitionKey,
		Payload:      payload,
		ArrivedAt:    time.Now().UTC(),
	}
	if err := r.buf.Append(ctx, claims.TenantID, target, kind, claims.Resources.DeliveryTarget, rec); err != nil {
		r.reject("buffer_closed")
		return Ack{}, err
	}
	if r.met != nil {
		r.met.RecordsAdmittedTotal.WithLabelValues(string(kind)).Inc()
	}
	return Ack{Channel: target, PartitionKey: partitionKey, AcceptedAt: rec.ArrivedAt}, nil
}

// derivePartitionKey applies the tenant's configured JMESPath to the
// payload when the producer omitted a key. Falls back to the tenant slug
// so same-tenant ordering still holds.
func (r *Router) derivePartitionKey(ctx context.Context, claims grant.Claims, payload json.RawMessage) string {
	if r.prov != nil {
		if t, err := r.prov.ResolveByID(ctx, claims.TenantID); err == nil && t.PartitionKeyExpr != "" {
			var doc any
			if json.Unmarshal(payload, &doc) == nil {
				if v, err := jmes.Search(t.PartitionKeyExpr, doc); err == nil {
					if s, ok := v.(string); ok && s != "" {
						return s
					}
				}
			}
		}
	}
	return claims.Slug
}

func (r *Router) reject(reason string) {
	if r.met != nil {
		r.met.RecordsRejectedTotal.WithLabelValues(reason).Inc()
	}
}
