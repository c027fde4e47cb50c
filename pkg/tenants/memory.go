// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// snapshot is one immutable configuration generation. Reload swaps a whole
// new snapshot; nothing mutates in place.
type snapshot struct {
	byKey map[string]Tenant
	byID  map[string]Tenant
}

type memProvider struct {
	log  *zap.SugaredLogger
	snap atomic.Pointer[snapshot]
}

func buildSnapshot(list []Tenant) *snapshot {
	s := &snapshot{byKey: map[string]Tenant{}, byID: map[string]Tenant{}}
	for _, t := range list {
		if t.APIKey != "" {
			s.byKey[t.APIKey] = t
		}
		if t.ID != "" {
			s.byID[t.ID] = t
		}
		if t.Slug != "" {
			s.byID[t.Slug] = t
		}
	}
	return s
}

// NewMemoryProvider builds an in-memory provider over a fixed tenant list.
func NewMemoryProvider(log *zap.SugaredLogger, list []Tenant) *memProvider {
	p := &memProvider{log: log}
	p.snap.Store(buildSnapshot(list))
	return p
}

// NewMemoryProviderFromEnv seeds from NEXUS_TENANTS_FILE (yaml) or
// TENANT_SEED_JSON, else a single localhost dev tenant.
func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	if f := os.Getenv("NEXUS_TENANTS_FILE"); f != "" {
		list, err := LoadFile(f)
		if err != nil {
			log.Fatalw("tenants file", "path", f, "err", err)
		}
		return NewMemoryProvider(log, list)
	}
	if seed := os.Getenv("TENANT_SEED_JSON"); seed != "" {
		var list []Tenant
		if err := json.Unmarshal([]byte(seed), &list); err != nil {
			log.Fatalw("tenant seed", "err", err)
		}
		return NewMemoryProvider(log, list)
	}
	// sensible localhost default for dev bring-up
	dev := Tenant{
		ID: "00000000-0000-0000-0000-000000000001", Slug: "dev",
		APIKey:          env("NEXUS_DEV_API_KEY", "dev-key"),
		MaxLeaseMinutes: 60,
		Resources: Resources{
			DataChannel:    "nexus-dev-client-intake",
			MediaChannel:   "nexus-dev-client-video",
			DeliveryTarget: "nexus-dev-landing",
		},
	}
	return NewMemoryProvider(log, []Tenant{dev})
}

// LoadFile parses a tenants yaml file: a top-level `tenants:` list.
func LoadFile(path string) ([]Tenant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tenants []Tenant `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.Tenants, nil
}

// Reload atomically swaps in a new configuration generation.
func (m *memProvider) Reload(list []Tenant) { m.snap.Store(buildSnapshot(list)) }

func (m *memProvider) ResolveByAPIKey(ctx context.Context, key string) (Tenant, error) {
	if key == "" {
		return Tenant{}, ErrUnknownTenant
	}
	if t, ok := m.snap.Load().byKey[key]; ok {
		return t, nil
	}
	return Tenant{}, ErrUnknownTenant
}

func (m *memProvider) ResolveByID(ctx context.Context, id string) (Tenant, error) {
	if id == "" {
		return Tenant{}, ErrUnknownTenant
	}
	if t, ok := m.snap.Load().byID[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrUnknownTenant
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
