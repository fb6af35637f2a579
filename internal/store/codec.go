package store

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"
)

// Codec is a reversible, lossless payload transform applied to serialized
// values above the store's compression threshold. The encoded form must be
// safe to embed in a JSON string.
type Codec interface {
	Encode(data []byte) (string, error)
	Decode(encoded string) ([]byte, error)
	Name() string
}

// GzipCodec compresses with gzip and wraps the result in base64 so the blob
// survives JSON string encoding.
type GzipCodec struct{}

// Name implements Codec.
func (GzipCodec) Name() string { return "gzip" }

// Encode implements Codec.
func (GzipCodec) Encode(data []byte) (string, error) {
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	if _, err := gzw.Write(data); err != nil {
		return "", err
	}
	if err := gzw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode implements Codec.
func (GzipCodec) Decode(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	gzr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gzr.Close()
	return io.ReadAll(gzr)
}
