// Package cache persists the last good article batch and other small JSON
// documents in a key-value blob store that survives restarts.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by BlobStore.Load when key has never been saved.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a durable key-value store of opaque values.
// Save replaces the previous value for key entirely.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// SaveJSON encodes v as indented UTF-8 JSON (HTML characters unescaped)
// and saves it under key.
func SaveJSON(ctx context.Context, s BlobStore, key string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Save(ctx, key, buf.Bytes())
}

// LoadJSON loads key and decodes it into v. It returns ErrNotFound
// unchanged so callers can tell a missing record from a corrupt one.
func LoadJSON(ctx context.Context, s BlobStore, key string, v any) error {
	data, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
