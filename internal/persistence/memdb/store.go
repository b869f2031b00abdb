// Package memdb implements the document store on hashicorp/go-memdb. It backs
// local development and the service tests.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/example/hearing-scheduler/internal/persistence"
)

const (
	tableRecords   = "records"
	indexID        = "id"
	indexContainer = "container"
	indexUnique    = "unique"
)

type document struct {
	Container    string
	ID           string
	PartitionKey string
	UniqueKey    string
	Attributes   map[string]string
	Body         []byte
	UpdatedAt    time.Time
}

func (d *document) record() persistence.Record {
	return persistence.CloneRecord(persistence.Record{
		ID:           d.ID,
		PartitionKey: d.PartitionKey,
		UniqueKey:    d.UniqueKey,
		Attributes:   d.Attributes,
		Body:         d.Body,
		UpdatedAt:    d.UpdatedAt,
	})
}

// Schema returns the memdb schema used by the store.
func Schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableRecords: {
				Name: tableRecords,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Container"},
								&memdb.StringFieldIndex{Field: "ID"},
							},
						},
					},
					indexContainer: {
						Name:    indexContainer,
						Indexer: &memdb.StringFieldIndex{Field: "Container"},
					},
					indexUnique: {
						Name:         indexUnique,
						AllowMissing: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Container"},
								&memdb.StringFieldIndex{Field: "UniqueKey", Lowercase: true},
							},
						},
					},
				},
			},
		},
	}
}

// Store is an in-memory persistence.Store.
type Store struct {
	db  *memdb.MemDB
	now func() time.Time
}

// New constructs an empty store. A nil clock defaults to time.Now.
func New(now func() time.Time) (*Store, error) {
	db, err := memdb.NewMemDB(Schema())
	if err != nil {
		return nil, fmt.Errorf("memdb: create database: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Close is a no-op; the database lives as long as the Store value.
func (s *Store) Close() error {
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(_ context.Context, container, id, partitionKey string) (persistence.Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	doc, err := lookup(txn, container, id)
	if err != nil {
		return persistence.Record{}, err
	}
	if doc == nil || !partitionMatches(doc, partitionKey) {
		return persistence.Record{}, persistence.ErrNotFound
	}
	return doc.record(), nil
}

// List returns records in the container matching the filter, ordered by id.
func (s *Store) List(_ context.Context, container string, filter persistence.Filter) ([]persistence.Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableRecords, indexContainer, container)
	if err != nil {
		return nil, fmt.Errorf("memdb: list %s: %w", container, err)
	}

	var out []persistence.Record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		doc := raw.(*document)
		if !filter.Matches(doc.Attributes) {
			continue
		}
		out = append(out, doc.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create inserts a new record, rejecting duplicate ids and unique keys.
func (s *Store) Create(_ context.Context, container string, record persistence.Record) error {
	if record.ID == "" {
		return persistence.ErrConstraintViolation
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := lookup(txn, container, record.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("memdb: %s/%s: %w", container, record.ID, persistence.ErrDuplicate)
	}
	if err := ensureUniqueKey(txn, container, record); err != nil {
		return err
	}
	if err := txn.Insert(tableRecords, s.toDocument(container, record)); err != nil {
		return fmt.Errorf("memdb: insert %s/%s: %w", container, record.ID, err)
	}
	txn.Commit()
	return nil
}

// Upsert inserts or replaces the record with the same id.
func (s *Store) Upsert(_ context.Context, container string, record persistence.Record) error {
	if record.ID == "" {
		return persistence.ErrConstraintViolation
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := ensureUniqueKey(txn, container, record); err != nil {
		return err
	}
	if err := txn.Insert(tableRecords, s.toDocument(container, record)); err != nil {
		return fmt.Errorf("memdb: upsert %s/%s: %w", container, record.ID, err)
	}
	txn.Commit()
	return nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(_ context.Context, container, id, partitionKey string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	doc, err := lookup(txn, container, id)
	if err != nil {
		return err
	}
	if doc == nil || !partitionMatches(doc, partitionKey) {
		return persistence.ErrNotFound
	}
	if err := txn.Delete(tableRecords, doc); err != nil {
		return fmt.Errorf("memdb: delete %s/%s: %w", container, id, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) toDocument(container string, record persistence.Record) *document {
	clone := persistence.CloneRecord(record)
	return &document{
		Container:    container,
		ID:           clone.ID,
		PartitionKey: clone.PartitionKey,
		UniqueKey:    persistence.NormalizeUniqueKey(clone.UniqueKey),
		Attributes:   clone.Attributes,
		Body:         clone.Body,
		UpdatedAt:    s.now().UTC(),
	}
}

func lookup(txn *memdb.Txn, container, id string) (*document, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := txn.First(tableRecords, indexID, container, id)
	if err != nil {
		return nil, fmt.Errorf("memdb: get %s/%s: %w", container, id, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*document), nil
}

// ensureUniqueKey rejects a unique key already held by a different id. memdb
// itself does not enforce uniqueness on secondary indexes.
func ensureUniqueKey(txn *memdb.Txn, container string, record persistence.Record) error {
	key := persistence.NormalizeUniqueKey(record.UniqueKey)
	if key == "" {
		return nil
	}
	raw, err := txn.First(tableRecords, indexUnique, container, key)
	if err != nil {
		return fmt.Errorf("memdb: unique lookup %s: %w", container, err)
	}
	if raw == nil {
		return nil
	}
	if holder := raw.(*document); holder.ID != record.ID {
		return fmt.Errorf("memdb: %s unique key %q held by %s: %w", container, key, holder.ID, persistence.ErrDuplicate)
	}
	return nil
}

func partitionMatches(doc *document, partitionKey string) bool {
	return partitionKey == "" || doc.PartitionKey == partitionKey
}
