package buffer

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/gzip"
)

// Codec turns a batch into the bytes handed to the sink. Encoding is a
// pluggable policy, not a correctness concern: every codec must keep all
// records and their order.
type Codec interface {
	Name() string
	Encode(b Batch) ([]byte, error)
}

// jsonlCodec writes one JSON document per record, in batch order.
type jsonlCodec struct{}

func JSONLines() Codec { return jsonlCodec{} }

func (jsonlCodec) Name() string { return "jsonl" }

func (jsonlCodec) Encode(b Batch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range b.Records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// gzipCodec wraps another codec's output.
type gzipCodec struct {
	inner Codec
}

func Gzip(inner Codec) Codec { return gzipCodec{inner: inner} }

func (c gzipCodec) Name() string { return c.inner.Name() + "+gzip" }

func (c gzipCodec) Encode(b Batch) ([]byte, error) {
	raw, err := c.inner.Encode(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
