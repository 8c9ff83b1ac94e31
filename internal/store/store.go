// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package store persists per-title sync state in BadgerDB. The title
// record is the source of truth for "last known mirrored state"; it is
// only written after a confirmed repository commit, so the store can
// never claim a state the artifact repository does not have.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/models"
)

const titleKeyPrefix = "title:"

// ErrNotFound means no record exists for the title.
var ErrNotFound = errors.New("title record not found")

// TitleStore is a BadgerDB-backed store of TitleRecords.
type TitleStore struct {
	db *badger.DB
}

// Open opens (or creates) the store at dir. An empty dir opens an
// in-memory database, used by tests.
func Open(dir string) (*TitleStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil // badger's logger bypasses zerolog; keep it quiet

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open title store: %w", err)
	}
	return &TitleStore{db: db}, nil
}

// NewTitleStore wraps an already-open BadgerDB.
func NewTitleStore(db *badger.DB) *TitleStore {
	return &TitleStore{db: db}
}

// Close flushes and closes the underlying database.
func (s *TitleStore) Close() error {
	return s.db.Close()
}

// Get returns the record for a title, or ErrNotFound.
func (s *TitleStore) Get(ctx context.Context, titleID string) (*models.TitleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec models.TitleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(titleKeyPrefix + titleID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get title: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put upserts a title record.
func (s *TitleStore) Put(ctx context.Context, rec *models.TitleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.TitleID == "" {
		return errors.New("title record requires a title id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal title record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(titleKeyPrefix+rec.TitleID), data)
	})
	if err != nil {
		return fmt.Errorf("put title %s: %w", rec.TitleID, err)
	}

	logging.Debug().Str("title_id", rec.TitleID).Int("depots", len(rec.DepotManifests)).Msg("title record persisted")
	return nil
}

// List returns all known title records, ordered by title ID. The
// scheduler iterates this for batch runs.
func (s *TitleStore) List(ctx context.Context) ([]*models.TitleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*models.TitleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(titleKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec models.TitleRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode title record %s: %w", it.Item().Key(), err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if len(records[i].TitleID) != len(records[j].TitleID) {
			return len(records[i].TitleID) < len(records[j].TitleID)
		}
		return records[i].TitleID < records[j].TitleID
	})
	return records, nil
}

// Delete removes a title record. Deleting an absent title is a no-op.
func (s *TitleStore) Delete(ctx context.Context, titleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(titleKeyPrefix + titleID))
	})
	if err != nil {
		return fmt.Errorf("delete title %s: %w", titleID, err)
	}
	return nil
}
