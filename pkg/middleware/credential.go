package middleware

import (
	"context"
	"net/http"
	"strings"

	"nexus/pkg/grant"
	"nexus/pkg/problems"
)

type ctxGrantKey struct{}

// Credential verifies the bearer grant on ingest requests and stores the
// verified claims in the request context. Health and metrics endpoints
// pass through. Expired and malformed grants are rejected here; scope
// checks against the target channel stay with the router, which knows
// the target.
func Credential(signer *grant.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				problems.Write(w, http.StatusUnauthorized,
					problems.New("missing-credential", "Missing credential", "Submit requires a bearer grant from the broker"))
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])
			claims, err := signer.Verify(raw)
			if err != nil {
				slug, title := "invalid-credential", "Invalid credential"
				if err == grant.ErrExpired {
					slug, title = "expired-credential", "Credential expired"
				}
				problems.Write(w, http.StatusUnauthorized,
					problems.New(slug, title, "Request a fresh grant from the broker"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxGrantKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GrantFrom extracts the verified grant claims from the context.
func GrantFrom(ctx context.Context) (grant.Claims, bool) {
	v, ok := ctx.Value(ctxGrantKey{}).(grant.Claims)
	return v, ok
}
