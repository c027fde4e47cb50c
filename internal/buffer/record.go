package buffer

import (
	"encoding/json"
	"time"

	"nexus/pkg/tenants"
)

// Record is an opaque payload plus the partition key used for ordering.
// Owned by the buffer from admission until flush or dead-letter; a record
// is never dropped silently.
type Record struct {
	PartitionKey string          `json:"partitionKey"`
	Payload      json.RawMessage `json:"payload"`
	ArrivedAt    time.Time       `json:"arrivedAt"`
}

// Batch is the ordered run of records accumulated for one channel since
// the last flush.
type Batch struct {
	ID           string
	TenantID     string
	Channel      string
	Kind         tenants.ChannelKind
	Target       string
	Records      []Record
	FirstArrival time.Time
}

// Encoded is a batch after the codec ran: what sinks and the dead-letter
// queue actually carry.
type Encoded struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	Channel  string `json:"channel"`
	Target   string `json:"target"`
	Count    int    `json:"count"`
	Encoding string `json:"encoding"`
	Body     []byte `json:"body"`
}
