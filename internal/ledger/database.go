package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	recordBucketName = "records"
	hashBucketName   = "source_hashes"
)

// DB defines the interface for ledger persistence. Storage failures surface
// to the caller as-is; the store never retries internally.
type DB interface {
	// UpsertRecord inserts the record unless one with the same source hash
	// already exists, in which case the existing record is returned
	// unchanged. The boolean reports whether a new record was created.
	UpsertRecord(record *Record) (*Record, bool, error)

	// SaveRecord overwrites an existing record (category and review-flag
	// corrections only).
	SaveRecord(record *Record) error

	// GetRecord retrieves a record by ID, or ErrNotFound.
	GetRecord(id string) (*Record, error)

	// ListRecords returns all records passing the filter.
	ListRecords(filter Filter) ([]*Record, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recordBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(hashBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// UpsertRecord inserts the record behind the source-hash index. The check and
// the insert share one write transaction, and bbolt serializes writers, so
// concurrent resubmissions of the same document still yield exactly one
// record per hash.
func (b *BoltDB) UpsertRecord(record *Record) (*Record, bool, error) {
	var (
		result  *Record
		created bool
	)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		hashes := tx.Bucket([]byte(hashBucketName))
		records := tx.Bucket([]byte(recordBucketName))

		if existingID := hashes.Get([]byte(record.SourceHash)); existingID != nil {
			data := records.Get(existingID)
			if data == nil {
				return fmt.Errorf("hash index points at missing record %s", existingID)
			}
			var existing Record
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			result = &existing
			created = false
			return nil
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		if err := records.Put([]byte(record.ID), data); err != nil {
			return err
		}
		if err := hashes.Put([]byte(record.SourceHash), []byte(record.ID)); err != nil {
			return err
		}
		result = record
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// SaveRecord overwrites an existing record by ID.
func (b *BoltDB) SaveRecord(record *Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		if bucket.Get([]byte(record.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, record.ID)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
}

// GetRecord retrieves a record by ID
func (b *BoltDB) GetRecord(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRecords returns all records passing the filter
func (b *BoltDB) ListRecords(filter Filter) ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			if filter.Matches(&record) {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
