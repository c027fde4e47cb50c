package buffer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Sink writes an encoded batch into the landing tier. A nil error means
// the write is durable; anything else is retried by the buffer.
type Sink interface {
	Write(ctx context.Context, e Encoded) error
}

// SinkFactory builds a sink for a delivery target.
type SinkFactory func(target string) (Sink, error)

// SinkRegistry maps sink kinds to factories so deployments can pick the
// landing backend per delivery target (file for dev, http for a
// firehose-style endpoint, redis for local stacks).
type SinkRegistry struct {
	factories map[string]SinkFactory
}

func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{factories: map[string]SinkFactory{}}
}

func (r *SinkRegistry) Register(kind string, f SinkFactory) { r.factories[kind] = f }

func (r *SinkRegistry) Build(kind, target string) (Sink, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no sink registered for kind %q", kind)
	}
	return f(target)
}

// fileSink lands batches as files under root/<target>/<batch id>.<encoding>.
// The write goes to a temp name first and renames into place, so a batch
// file is either fully present or absent.
type fileSink struct {
	root string
}

func NewFileSink(root string) Sink { return &fileSink{root: root} }

func (s *fileSink) Write(ctx context.Context, e Encoded) error {
	dir := filepath.Join(s.root, e.Target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	final := filepath.Join(dir, e.BatchID+"."+e.Encoding)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, e.Body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// httpSink POSTs the batch body to a durable ingestion endpoint. The
// endpoint acks with 2xx once the batch is persisted.
type httpSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, client *http.Client) Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSink{url: url, client: client}
}

func (s *httpSink) Write(ctx context.Context, e Encoded) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(e.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Nexus-Batch-Id", e.BatchID)
	req.Header.Set("X-Nexus-Target", e.Target)
	req.Header.Set("X-Nexus-Encoding", e.Encoding)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("landing endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// redisSink lands batches into a per-target list. Dev/local stacks only.
type redisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) Sink { return &redisSink{rdb: rdb} }

func (s *redisSink) Write(ctx context.Context, e Encoded) error {
	key := "nexus:landing:" + e.Target
	return s.rdb.RPush(ctx, key, e.Body).Err()
}
