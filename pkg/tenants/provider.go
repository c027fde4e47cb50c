package tenants

import (
	"context"
	"errors"
)

// ErrUnknownTenant is returned for any identity not present in the mapping.
// Lookups fail closed: no fallback tenant, no partial match.
var ErrUnknownTenant = errors.New("unknown tenant")

type Provider interface {
	// Resolve tenant from the requestor identity (API key / signed principal).
	ResolveByAPIKey(ctx context.Context, key string) (Tenant, error)
	// Resolve from tenant id or slug.
	ResolveByID(ctx context.Context, id string) (Tenant, error)
}
