package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/teamsbots/teamsbots/internal/schema"
)

var _ Store = (*BadgerStore)(nil)

// Key prefixes.
const (
	prefixConversations = "conversations/"
	prefixUploads       = "uploads/"
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// UploadTTL expires pending uploads. Zero keeps them until taken.
	UploadTTL time.Duration
	// GCInterval is how often the value log is garbage collected.
	GCInterval time.Duration
	// InMemory keeps all data in memory. Used by tests.
	InMemory bool
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db        *badger.DB
	uploadTTL time.Duration
	stopCh    chan struct{}
}

// NewBadgerStore opens or creates a store under dataDir.
func NewBadgerStore(dataDir string, o BadgerOptions) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataDir, "teamsbots.db"))
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BadgerStore{
		db:        db,
		uploadTTL: o.UploadTTL,
		stopCh:    make(chan struct{}),
	}

	if o.GCInterval > 0 && !o.InMemory {
		go s.runGC(o.GCInterval)
	}

	return s, nil
}

// Close closes the database and stops background goroutines.
func (s *BadgerStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

func (s *BadgerStore) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// SaveReference stores or replaces the reference under key.
func (s *BadgerStore) SaveReference(key string, ref schema.ConversationReference) error {
	data, err := json.Marshal(StoredReference{Key: key, Reference: ref, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixConversations+key), data)
	})
}

// GetReference returns the reference for key.
func (s *BadgerStore) GetReference(key string) (*StoredReference, error) {
	var ref StoredReference
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixConversations+key), &ref)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListReferences returns all references ordered by key.
func (s *BadgerStore) ListReferences() ([]StoredReference, error) {
	refs := []StoredReference{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixConversations)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ref StoredReference
				if err := json.Unmarshal(val, &ref); err != nil {
					return err
				}
				refs = append(refs, ref)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return refs, err
}

// DeleteReference removes the reference for key.
func (s *BadgerStore) DeleteReference(key string) error {
	k := []byte(prefixConversations + key)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(k)
	})
}

// PutUpload stores an upload under its ID with the configured TTL.
func (s *BadgerStore) PutUpload(u *PendingUpload) error {
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixUploads+u.ID), data)
		if s.uploadTTL > 0 {
			e = e.WithTTL(s.uploadTTL)
		}
		return txn.SetEntry(e)
	})
}

// TakeUpload returns and removes the upload.
func (s *BadgerStore) TakeUpload(id string) (*PendingUpload, error) {
	var u PendingUpload
	k := []byte(prefixUploads + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, k, &u); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUpload removes the upload if present.
func (s *BadgerStore) DeleteUpload(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixUploads + id))
	})
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
