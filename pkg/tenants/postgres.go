// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  slug text UNIQUE,
  api_key text UNIQUE,
  max_lease_minutes int DEFAULT 0,
  data_channel text,
  media_channel text,
  delivery_target text,
  partition_key_expr text DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS audit_events (
  id uuid PRIMARY KEY,
  tenant_id uuid,
  tenant_slug text,
  session_name text,
  ttl_granted_sec int,
  outcome text,
  detail text,
  issued_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

// SeedFromEnv upserts tenants from a JSON seed blob (dev/bootstrap only).
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, seed string) error {
	if seed == "" {
		return nil
	}
	var list []Tenant
	if err := json.Unmarshal([]byte(seed), &list); err != nil {
		return err
	}
	for _, t := range list {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := dbPool.Exec(ctx, `INSERT INTO tenants (id, slug, api_key, max_lease_minutes, data_channel, media_channel, delivery_target, partition_key_expr)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET slug=EXCLUDED.slug, api_key=EXCLUDED.api_key, max_lease_minutes=EXCLUDED.max_lease_minutes,
  data_channel=EXCLUDED.data_channel, media_channel=EXCLUDED.media_channel, delivery_target=EXCLUDED.delivery_target,
  partition_key_expr=EXCLUDED.partition_key_expr`,
			id, t.Slug, t.APIKey, t.MaxLeaseMinutes, t.Resources.DataChannel, t.Resources.MediaChannel, t.Resources.DeliveryTarget, t.PartitionKeyExpr)
		if err != nil {
			return err
		}
	}
	return nil
}

const tenantCols = `id, slug, api_key, max_lease_minutes, data_channel, media_channel, delivery_target, COALESCE(partition_key_expr,'')`

func (p *pgProvider) scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.APIKey, &t.MaxLeaseMinutes,
		&t.Resources.DataChannel, &t.Resources.MediaChannel, &t.Resources.DeliveryTarget, &t.PartitionKeyExpr)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrUnknownTenant
	}
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (p *pgProvider) ResolveByAPIKey(ctx context.Context, key string) (Tenant, error) {
	if key == "" {
		return Tenant{}, ErrUnknownTenant
	}
	row := p.dbPool.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE api_key=$1`, key)
	return p.scanTenant(row)
}

func (p *pgProvider) ResolveByID(ctx context.Context, id string) (Tenant, error) {
	if id == "" {
		return Tenant{}, ErrUnknownTenant
	}
	row := p.dbPool.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id::text=$1 OR slug=$1`, id)
	return p.scanTenant(row)
}
