package promotion

import (
	"context"
	"errors"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"nexus/pkg/metrics"
	"nexus/pkg/tiers"
)

// ErrPolicyViolation marks a denied promotion. Never retried: a denial is
// a caller or configuration error, not a transient condition.
var ErrPolicyViolation = errors.New("policy violation")

// Decision is the outcome of one promotion check. Denials carry the
// reasons so movers can tell a bad request from a missing entitlement.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Source  string   `json:"source"`
	Dest    string   `json:"dest"`
	Mover   string   `json:"mover"`
	Reasons []string `json:"reasons,omitempty"`
}

// Service validates tier promotions. The tier table is the base rule set:
// the mover must read the source, write the destination, and the pair
// must be adjacent in the hierarchy. A deployment may layer a Rego module
// on top; the module can only deny further, never widen access.
type Service struct {
	policy   *tiers.Policy
	prepared *rego.PreparedEvalQuery
	met      *metrics.Metrics
	log      *zap.SugaredLogger
}

// NewService prepares the optional Rego override once, at construction.
// Entrypoint: data.nexus.promotion.allow.
func NewService(ctx context.Context, policy *tiers.Policy, regoModule string, met *metrics.Metrics, log *zap.SugaredLogger) (*Service, error) {
	s := &Service{policy: policy, met: met, log: log}
	if regoModule != "" {
		q, err := rego.New(
			rego.Query("data.nexus.promotion.allow"),
			rego.Module("promotion.rego", regoModule),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, err
		}
		s.prepared = &q
	}
	return s, nil
}

// CheckPromotion validates that mover may move data from source into dest.
// Any failed rule denies the whole promotion; there is no partial result.
func (s *Service) CheckPromotion(ctx context.Context, source, dest, mover string) Decision {
	d := Decision{Source: source, Dest: dest, Mover: mover}

	if _, ok := s.policy.Get(source); !ok {
		d.Reasons = append(d.Reasons, "unknown source tier")
	}
	if _, ok := s.policy.Get(dest); !ok {
		d.Reasons = append(d.Reasons, "unknown destination tier")
	}
	if len(d.Reasons) == 0 {
		if !s.policy.Adjacent(source, dest) {
			d.Reasons = append(d.Reasons, "tiers not adjacent in promotion order")
		}
		if !s.policy.CanRead(source, mover) {
			d.Reasons = append(d.Reasons, "mover may not read source tier")
		}
		if !s.policy.CanWrite(dest, mover) {
			d.Reasons = append(d.Reasons, "mover may not write destination tier")
		}
	}

	if len(d.Reasons) == 0 && s.prepared != nil {
		input := map[string]any{"source": source, "dest": dest, "mover": mover}
		rs, err := s.prepared.Eval(ctx, rego.EvalInput(input))
		if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
			// Fail closed on evaluation trouble.
			d.Reasons = append(d.Reasons, "policy_error")
		} else if allow, ok := rs[0].Expressions[0].Value.(bool); !ok || !allow {
			d.Reasons = append(d.Reasons, "denied by policy module")
		}
	}

	d.Allowed = len(d.Reasons) == 0
	if s.met != nil {
		decision := "allowed"
		if !d.Allowed {
			decision = "denied"
		}
		s.met.PromotionChecksTotal.WithLabelValues(decision).Inc()
	}
	if !d.Allowed {
		s.log.Warnw("promotion denied", "source", source, "dest", dest, "mover", mover, "reasons", d.Reasons)
	}
	return d
}
