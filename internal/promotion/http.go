package promotion

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexus/pkg/problems"
)

// RegisterHTTP mounts the promotion check endpoint used by movers before
// any data movement.
// POST /v1/promotions/check  body: { sourceTier, destTier, mover }
func RegisterHTTP(r chi.Router, svc *Service) {
	r.Post("/v1/promotions/check", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SourceTier string `json:"sourceTier"`
			DestTier   string `json:"destTier"`
			Mover      string `json:"mover"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			problems.Write(w, http.StatusBadRequest,
				problems.New("malformed-request", "Malformed request", "Body must carry sourceTier, destTier and mover"))
			return
		}
		d := svc.CheckPromotion(req.Context(), body.SourceTier, body.DestTier, body.Mover)
		if !d.Allowed {
			prob := problems.New("policy-violation", "Promotion denied", "The mover is not authorized for this promotion")
			prob["reasons"] = d.Reasons
			problems.Write(w, http.StatusForbidden, prob)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d)
	})
}
