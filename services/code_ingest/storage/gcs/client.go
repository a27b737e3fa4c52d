// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs implements the durable object tier of the snapshot store
// on Google Cloud Storage.
//
// Snapshot and session objects map one-to-one onto bucket objects, with
// storage metadata carried as GCS object metadata. Use this backend
// when multiple nodes must share one durable store; the badger backend
// covers single-node deployments.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	cloudstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
)

// Config holds configuration for the GCS backend.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// Prefix is prepended to every object key. Optional; lets several
	// deployments share one bucket.
	Prefix string

	// CredentialsFile is the path to a service account key. When empty,
	// application default credentials are used.
	CredentialsFile string
}

// Store implements the durable blob contract on a GCS bucket.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is.
type Store struct {
	client *cloudstorage.Client
	bucket string
	prefix string
}

// Compile-time check that Store satisfies the durable contract.
var _ storage.BlobStore = (*Store)(nil)

// NewStore creates a GCS-backed blob store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := cloudstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Put writes an object with its metadata. An existing object under the
// same key is overwritten whole.
func (s *Store) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))

	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"
	writer.Metadata = meta

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

// Get reads an object and its metadata. A missing object reports
// storage.ErrObjectNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, map[string]string, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, cloudstorage.ErrObjectNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
		}
		return nil, nil, fmt.Errorf("failed to stat GCS object %s: %w", key, err)
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, cloudstorage.ErrObjectNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
		}
		return nil, nil, fmt.Errorf("failed to open GCS object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read GCS object %s: %w", key, err)
	}
	return data, attrs.Metadata, nil
}

// Exists reports whether an object is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))

	_, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, cloudstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat GCS object %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) objectPath(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
