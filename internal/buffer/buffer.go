// Package buffer implements the delivery stage: per-channel micro-batching
// with size/time flush triggers, durable writes to the landing tier, and
// bounded retry with dead-lettering. At-least-once: a retried flush may
// duplicate a batch downstream, it never under-delivers.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/pkg/metrics"
	"nexus/pkg/tenants"
)

// ErrClosed is returned for appends after shutdown began.
var ErrClosed = errors.New("buffer closed")

type Options struct {
	MaxRecords     int           // size threshold
	MaxAge         time.Duration // time threshold since first unflushed record
	FlushTimeout   time.Duration // bound on one landing tier write
	MaxRetries     int           // retries beyond the first attempt
	InitialBackoff time.Duration
}

func (o *Options) defaults() {
	if o.MaxRecords <= 0 {
		o.MaxRecords = 500
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 30 * time.Second
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
}

// Buffer owns the accumulating batches. It is the only component here
// with mutable state: appends to one channel serialize on that channel's
// lock, channels are independent, flushes per channel never overlap.
type Buffer struct {
	opts  Options
	sink  Sink
	codec Codec
	dlq   DeadLetter
	met   *metrics.Metrics
	log   *zap.SugaredLogger

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
	wg       sync.WaitGroup
}

func New(opts Options, sink Sink, codec Codec, dlq DeadLetter, met *metrics.Metrics, log *zap.SugaredLogger) *Buffer {
	opts.defaults()
	if codec == nil {
		codec = JSONLines()
	}
	return &Buffer{
		opts:     opts,
		sink:     sink,
		codec:    codec,
		dlq:      dlq,
		met:      met,
		log:      log,
		channels: map[string]*channel{},
	}
}

// channel is one tenant ingestion path. Accumulating -> Flushing ->
// Accumulating; appends keep going while a flush is in flight, the next
// flush just waits its turn on flushMu.
type channel struct {
	parent   *Buffer
	key      string
	kind     tenants.ChannelKind
	target   string
	tenantID string

	mu    sync.Mutex // exclusive append: one writer-of-record at a time
	recs  []Record
	first time.Time
	timer *time.Timer
	gen   uint64 // bumped on every take; a stale timer fire is a no-op

	flushMu sync.Mutex // serializes Flushing per channel
}

// Append admits a record into the channel's accumulating batch. Arrival
// order within the channel is the flush order. The returned nil is an
// enqueue acknowledgment, not a durability guarantee.
func (b *Buffer) Append(ctx context.Context, tenantID, channelKey string, kind tenants.ChannelKind, target string, rec Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	ch, ok := b.channels[channelKey]
	if !ok {
		ch = &channel{parent: b, key: channelKey, kind: kind, target: target, tenantID: tenantID}
		b.channels[channelKey] = ch
	}
	b.mu.Unlock()

	ch.mu.Lock()
	ch.recs = append(ch.recs, rec)
	n := len(ch.recs)
	if n == 1 {
		ch.first = rec.ArrivedAt
		gen := ch.gen
		ch.timer = time.AfterFunc(b.opts.MaxAge, func() { ch.flushDue(gen) })
	}
	var batch *Batch
	if n >= b.opts.MaxRecords {
		batch = ch.take()
	}
	ch.mu.Unlock()

	if b.met != nil {
		pending := n
		if batch != nil {
			pending = 0
		}
		b.met.BufferedRecords.WithLabelValues(channelKey).Set(float64(pending))
	}
	if batch != nil {
		b.startFlush(ch, batch)
	}
	return nil
}

// take drains the accumulated records into a batch. Caller holds ch.mu.
func (ch *channel) take() *Batch {
	if len(ch.recs) == 0 {
		return nil
	}
	ch.gen++
	if ch.timer != nil {
		ch.timer.Stop()
		ch.timer = nil
	}
	batch := &Batch{
		ID:           uuid.NewString(),
		TenantID:     ch.tenantID,
		Channel:      ch.key,
		Kind:         ch.kind,
		Target:       ch.target,
		Records:      ch.recs,
		FirstArrival: ch.first,
	}
	ch.recs = nil
	ch.first = time.Time{}
	return batch
}

// flushDue fires when MaxAge elapsed since the first unflushed record.
// A fire from a timer already retired by a size-threshold flush sees a
// newer generation and backs off, so the next batch keeps its full window.
func (ch *channel) flushDue(gen uint64) {
	ch.mu.Lock()
	if ch.gen != gen {
		ch.mu.Unlock()
		return
	}
	batch := ch.take()
	ch.mu.Unlock()
	ch.parent.flushTaken(ch, batch)
}

// drain force-flushes whatever is accumulating, thresholds aside.
func (ch *channel) drain() {
	ch.mu.Lock()
	batch := ch.take()
	ch.mu.Unlock()
	ch.parent.flushTaken(ch, batch)
}

func (b *Buffer) flushTaken(ch *channel, batch *Batch) {
	if batch == nil {
		return
	}
	if b.met != nil {
		b.met.BufferedRecords.WithLabelValues(ch.key).Set(0)
	}
	b.startFlush(ch, batch)
}

func (b *Buffer) startFlush(ch *channel, batch *Batch) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ch.flushMu.Lock()
		defer ch.flushMu.Unlock()
		b.deliver(ch, batch)
	}()
}

// deliver encodes the batch and writes it durably, retrying transient
// failures with bounded exponential backoff. Exhausted batches go to the
// dead letter sink with every record intact.
func (b *Buffer) deliver(ch *channel, batch *Batch) {
	body, err := b.codec.Encode(*batch)
	if err != nil {
		// Encoding is deterministic; retrying cannot help.
		b.log.Errorw("batch encode", "err", err, "batch", batch.ID, "channel", batch.Channel)
		raw, _ := JSONLines().Encode(*batch)
		b.deadLetter(Encoded{BatchID: batch.ID, TenantID: batch.TenantID, Channel: batch.Channel, Target: batch.Target, Count: len(batch.Records), Encoding: "jsonl", Body: raw}, "encode: "+err.Error())
		return
	}
	enc := Encoded{
		BatchID:  batch.ID,
		TenantID: batch.TenantID,
		Channel:  batch.Channel,
		Target:   batch.Target,
		Count:    len(batch.Records),
		Encoding: b.codec.Name(),
		Body:     body,
	}

	start := time.Now()
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.FlushTimeout)
		defer cancel()
		return b.sink.Write(ctx, enc)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.InitialBackoff
	notify := func(err error, next time.Duration) {
		if b.met != nil {
			b.met.FlushRetriesTotal.Inc()
		}
		b.log.Warnw("flush retry", "batch", enc.BatchID, "channel", enc.Channel, "err", err, "next", next)
	}
	err = backoff.RetryNotify(op, backoff.WithMaxRetries(bo, uint64(b.opts.MaxRetries)), notify)
	if err != nil {
		b.log.Errorw("flush exhausted", "batch", enc.BatchID, "channel", enc.Channel, "records", enc.Count, "err", err)
		b.deadLetter(enc, err.Error())
		return
	}
	if b.met != nil {
		b.met.BatchesFlushedTotal.WithLabelValues(string(ch.kind)).Inc()
		b.met.FlushDuration.Observe(time.Since(start).Seconds())
	}
	b.log.Infow("batch flushed", "batch", enc.BatchID, "channel", enc.Channel, "records", enc.Count)
}

func (b *Buffer) deadLetter(enc Encoded, reason string) {
	if b.met != nil {
		b.met.DeadLettersTotal.Inc()
	}
	if b.dlq != nil {
		b.dlq.Add(context.Background(), enc, reason)
	}
}

// Pending reports how many records are accumulating for a channel.
func (b *Buffer) Pending(channelKey string) int {
	b.mu.Lock()
	ch, ok := b.channels[channelKey]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.recs)
}

// Close flushes everything still accumulating and waits for in-flight
// deliveries, bounded by ctx.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	chans := make([]*channel, 0, len(b.channels))
	for _, ch := range b.channels {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		ch.drain()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
