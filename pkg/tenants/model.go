package tenants

import "time"

// ChannelKind selects which of a tenant's ingestion paths a record targets.
type ChannelKind string

const (
	ChannelData  ChannelKind = "data"
	ChannelMedia ChannelKind = "media"
)

// Resources are the fixed handles bound to a tenant at configuration time:
// one data channel, one media channel, one delivery-buffer target. A grant
// is never scoped wider than these three.
type Resources struct {
	DataChannel    string `yaml:"data_channel" json:"dataChannel"`
	MediaChannel   string `yaml:"media_channel" json:"mediaChannel"`
	DeliveryTarget string `yaml:"delivery_target" json:"deliveryTarget"`
}

// Handles returns the resource set as a slice, in stable order.
func (r Resources) Handles() []string {
	return []string{r.DataChannel, r.MediaChannel, r.DeliveryTarget}
}

// Channel maps a channel kind to the bound handle. Unknown kinds return "".
func (r Resources) Channel(kind ChannelKind) string {
	switch kind {
	case ChannelData:
		return r.DataChannel
	case ChannelMedia:
		return r.MediaChannel
	}
	return ""
}

// Tenant represents a producer identity bound to a fixed resource set.
// Tenants are configuration-time entities and never mutate at runtime.
type Tenant struct {
	ID              string    `yaml:"id" json:"id"`
	Slug            string    `yaml:"slug" json:"slug"`
	APIKey          string    `yaml:"api_key" json:"apiKey,omitempty"` // requestor identity on issue requests
	MaxLeaseMinutes int       `yaml:"max_lease_minutes" json:"maxLeaseMinutes"`
	Resources       Resources `yaml:"resources" json:"resources"`

	// Optional JMESPath over the record payload used to derive a partition
	// key when the producer omits one (e.g. "droneId").
	PartitionKeyExpr string `yaml:"partition_key_expr" json:"partitionKeyExpr,omitempty"`
}

// LeaseCap is the per-tenant ceiling on granted leases; zero means the
// deployment-wide policy max applies.
func (t Tenant) LeaseCap() time.Duration {
	if t.MaxLeaseMinutes <= 0 {
		return 0
	}
	return time.Duration(t.MaxLeaseMinutes) * time.Minute
}
