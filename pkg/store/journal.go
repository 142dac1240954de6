package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sshmanager/pkg/transfer"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "transfer:"

// Journal persists transfer items in BadgerDB so the queue can be restored
// after a restart.
type Journal struct {
	db *badger.DB
}

var _ transfer.Journal = (*Journal)(nil)

// Open opens (or creates) a journal directory on disk.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// OpenInMemory returns a journal that lives only as long as the process.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// record is the on-disk shape of a transfer item.
type record struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	LocalPath        string    `json:"local_path"`
	RemotePath       string    `json:"remote_path"`
	Direction        int       `json:"direction"`
	TotalBytes       int64     `json:"total_bytes"`
	Status           int       `json:"status"`
	TransferredBytes int64     `json:"transferred_bytes"`
	Progress         float64   `json:"progress"`
	ResumeOffset     int64     `json:"resume_offset"`
	CanResume        bool      `json:"can_resume"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

func (j *Journal) Save(item transfer.TransferItem) error {
	data, err := json.Marshal(toRecord(item))
	if err != nil {
		return fmt.Errorf("marshal transfer %s: %w", item.ID, err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+item.ID), data)
	})
}

// Delete removes an item. Deleting an unknown id is not an error.
func (j *Journal) Delete(id string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// LoadAll returns every journaled item ordered by creation time. Records
// that fail to decode are skipped.
func (j *Journal) LoadAll() ([]transfer.TransferItem, error) {
	var items []transfer.TransferItem
	prefix := []byte(keyPrefix)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			err := it.Item().Value(func(v []byte) error {
				var rec record
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				items = append(items, fromRecord(rec))
				return nil
			})
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "LoadAll",
					"key":      key,
					"error":    err.Error(),
				}).Warn("Skipping unreadable journal record")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	return items, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func toRecord(item transfer.TransferItem) record {
	return record{
		ID:               item.ID,
		FileName:         item.FileName,
		LocalPath:        item.LocalPath,
		RemotePath:       item.RemotePath,
		Direction:        int(item.Direction),
		TotalBytes:       item.TotalBytes,
		Status:           int(item.Status),
		TransferredBytes: item.TransferredBytes,
		Progress:         item.Progress,
		ResumeOffset:     item.ResumeOffset,
		CanResume:        item.CanResume,
		ErrorMessage:     item.ErrorMessage,
		CreatedAt:        item.CreatedAt,
		StartedAt:        item.StartedAt,
		CompletedAt:      item.CompletedAt,
	}
}

func fromRecord(rec record) transfer.TransferItem {
	return transfer.TransferItem{
		ID:               rec.ID,
		FileName:         rec.FileName,
		LocalPath:        rec.LocalPath,
		RemotePath:       rec.RemotePath,
		Direction:        transfer.Direction(rec.Direction),
		TotalBytes:       rec.TotalBytes,
		Status:           transfer.TransferStatus(rec.Status),
		TransferredBytes: rec.TransferredBytes,
		Progress:         rec.Progress,
		ResumeOffset:     rec.ResumeOffset,
		CanResume:        rec.CanResume,
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        rec.CreatedAt,
		StartedAt:        rec.StartedAt,
		CompletedAt:      rec.CompletedAt,
	}
}
