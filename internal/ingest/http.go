package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexus/internal/buffer"
	"nexus/pkg/middleware"
	"nexus/pkg/problems"
)

// RegisterHTTP mounts the submit endpoint.
// POST /v1/channels/{channel}/records  body: { partitionKey, payload }
// The bearer grant is verified by middleware.Credential before this runs.
func RegisterHTTP(r chi.Router, router *Router) {
	r.Post("/v1/channels/{channel}/records", func(w http.ResponseWriter, req *http.Request) {
		claims, ok := middleware.GrantFrom(req.Context())
		if !ok {
			problems.Write(w, http.StatusUnauthorized,
				problems.New("missing-credential", "Missing credential", "Submit requires a bearer grant from the broker"))
			return
		}
		target := chi.URLParam(req, "channel")
		var body struct {
			PartitionKey string          `json:"partitionKey"`
			Payload      json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Payload) == 0 {
			problems.Write(w, http.StatusBadRequest,
				problems.New("malformed-record", "Malformed record", "Body must carry a payload and optional partitionKey"))
			return
		}

		ack, err := router.Submit(req.Context(), claims, target, body.PartitionKey, body.Payload)
		if err != nil {
			switch {
			case errors.Is(err, ErrScopeViolation):
				problems.Write(w, http.StatusForbidden,
					problems.New("scope-violation", "Scope violation", "The target channel is outside the credential's scope"))
			case errors.Is(err, buffer.ErrClosed):
				// Retryable: the instance is draining, another replica will take it.
				problems.Write(w, http.StatusServiceUnavailable,
					problems.New("delivery-failure", "Buffer unavailable", "The delivery buffer is shutting down; retry"))
			default:
				problems.Write(w, http.StatusInternalServerError,
					problems.New("submit-failure", "Submit failed", "The router could not enqueue the record"))
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(ack)
	})
}
