package buffer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeadLetter receives batches whose retries are exhausted. Out-of-band
// handling (replay tooling, alerting) drains it; the buffer's only duty
// is that nothing admitted ever vanishes without a trace.
type DeadLetter interface {
	Add(ctx context.Context, e Encoded, reason string)
}

// Letter is the dead-letter envelope.
type Letter struct {
	Batch    Encoded   `json:"batch"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

// memoryDeadLetter keeps letters in process. Dev and test fallback.
type memoryDeadLetter struct {
	mu      sync.Mutex
	letters []Letter
}

func NewMemoryDeadLetter() *memoryDeadLetter { return &memoryDeadLetter{} }

func (d *memoryDeadLetter) Add(ctx context.Context, e Encoded, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, Letter{Batch: e, Reason: reason, FailedAt: time.Now().UTC()})
}

// Letters returns a copy of everything dead-lettered so far.
func (d *memoryDeadLetter) Letters() []Letter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Letter(nil), d.letters...)
}

// redisDeadLetter pushes letters onto a per-channel list.
type redisDeadLetter struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewRedisDeadLetter(rdb *redis.Client, log *zap.SugaredLogger) DeadLetter {
	return &redisDeadLetter{rdb: rdb, log: log}
}

func (d *redisDeadLetter) Add(ctx context.Context, e Encoded, reason string) {
	raw, _ := json.Marshal(Letter{Batch: e, Reason: reason, FailedAt: time.Now().UTC()})
	if err := d.rdb.LPush(ctx, "nexus:dlq:"+e.Channel, raw).Err(); err != nil {
		// Last resort: the letter survives only in the log.
		d.log.Errorw("dead letter push", "err", err, "batch", e.BatchID, "channel", e.Channel)
	}
}
