// Package store writes fetched response bodies to a gocloud.dev/blob bucket.
package store

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strconv"

	"gocloud.dev/blob"
)

// Extensions of the two artifacts stored per input item.
const (
	PageExt = ".html"
	DataExt = ".json"
)

// Store persists artifacts under an optional key prefix.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

// New creates a Store writing to bucket. prefix is prepended to every key.
func New(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

// Key returns the artifact key for the item at cursor with extension ext.
func (s *Store) Key(cursor int, ext string) string {
	return s.prefix + strconv.Itoa(cursor) + ext
}

// Store writes data under key, replacing any existing object.
func (s *Store) Store(ctx context.Context, key string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: contentType(key)}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	return ok, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
