package broker

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nexus/pkg/problems"
	"nexus/pkg/tenants"
	"nexus/pkg/trustanchor"
)

// RegisterHTTP mounts the credential issue endpoint.
// POST /v1/credentials  body: { requestorIdentity, ttlMinutesRequested }
func RegisterHTTP(r chi.Router, svc *Service) {
	r.Post("/v1/credentials", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			RequestorIdentity   string `json:"requestorIdentity"`
			TTLMinutesRequested *int   `json:"ttlMinutesRequested"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.RequestorIdentity == "" {
			// Header form accepted for producers that keep the key out of bodies.
			body.RequestorIdentity = req.Header.Get("X-Api-Key")
		}

		// Only an absent field means "no preference"; an explicit zero or
		// negative is a request and clamps to the nearest bound.
		var requested *time.Duration
		if body.TTLMinutesRequested != nil {
			d := time.Duration(*body.TTLMinutesRequested) * time.Minute
			requested = &d
		}

		g, err := svc.IssueCredential(req.Context(), body.RequestorIdentity, requested)
		if err != nil {
			switch {
			case errors.Is(err, tenants.ErrUnknownTenant):
				problems.Write(w, http.StatusNotFound,
					problems.New("unknown-tenant", "Unknown tenant", "The requestor identity is not bound to any tenant"))
			case errors.Is(err, trustanchor.ErrAssumeFailure):
				// Potentially systemic; no credential material leaves on this path.
				problems.Write(w, http.StatusBadGateway,
					problems.New("upstream-assume-failure", "Trust anchor failure", "The trust anchor denied or failed the scoped role assumption"))
			default:
				problems.Write(w, http.StatusInternalServerError,
					problems.New("issue-failure", "Credential issue failed", "The broker could not complete the issuance"))
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(g)
	})
}
