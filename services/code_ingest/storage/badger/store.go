// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
)

// Key prefixes keep object data and its metadata sidecar in disjoint
// keyspaces while pairing them by storage key.
const (
	objectPrefix = "obj:"
	metaPrefix   = "meta:"
)

// Store implements the durable blob contract on a managed BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; each operation runs in its own transaction.
type Store struct {
	db *DB
}

// Compile-time check that Store satisfies the durable contract.
var _ storage.BlobStore = (*Store)(nil)

// NewStore creates a blob store over an open database.
func NewStore(db *DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	return &Store{db: db}, nil
}

// Put writes an object and its metadata in a single transaction. An
// existing object under the same key is overwritten whole.
func (s *Store) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", key, err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(objectPrefix+key), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+key), metaJSON)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get reads an object and its metadata. A missing object reports
// storage.ErrObjectNotFound; a missing metadata sidecar yields a nil
// map, never an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, map[string]string, error) {
	var (
		data []byte
		meta map[string]string
	)

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectPrefix + key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		metaItem, err := txn.Get([]byte(metaPrefix + key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, meta, nil
}

// Exists reports whether an object is present without reading its value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(objectPrefix + key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return found, nil
}
