package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/teamsbots/teamsbots/internal/schema"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	references map[string]StoredReference
	uploads    map[string]*PendingUpload
	uploadTTL  time.Duration
	now        func() time.Time
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty store. Uploads older than uploadTTL are
// treated as missing; zero keeps them until taken.
func NewMemoryStore(uploadTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		references: make(map[string]StoredReference),
		uploads:    make(map[string]*PendingUpload),
		uploadTTL:  uploadTTL,
		now:        time.Now,
	}
}

// SaveReference stores or replaces the reference under key.
func (s *MemoryStore) SaveReference(key string, ref schema.ConversationReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.references[key] = StoredReference{Key: key, Reference: ref, UpdatedAt: s.now()}
	return nil
}

// GetReference returns the reference for key.
func (s *MemoryStore) GetReference(key string) (*StoredReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.references[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &ref, nil
}

// ListReferences returns all references ordered by key.
func (s *MemoryStore) ListReferences() ([]StoredReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]StoredReference, 0, len(s.references))
	for _, ref := range s.references {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// DeleteReference removes the reference for key.
func (s *MemoryStore) DeleteReference(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.references[key]; !ok {
		return ErrNotFound
	}
	delete(s.references, key)
	return nil
}

// PutUpload stores an upload under its ID.
func (s *MemoryStore) PutUpload(u *PendingUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepUploads()

	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.uploads[u.ID] = &cp
	return nil
}

// sweepUploads drops expired uploads that were never taken. Callers hold mu.
func (s *MemoryStore) sweepUploads() {
	if s.uploadTTL <= 0 {
		return
	}
	now := s.now()
	for id, u := range s.uploads {
		if now.Sub(u.CreatedAt) > s.uploadTTL {
			delete(s.uploads, id)
		}
	}
}

// TakeUpload returns and removes the upload.
func (s *MemoryStore) TakeUpload(id string) (*PendingUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.uploads, id)

	if s.uploadTTL > 0 && s.now().Sub(u.CreatedAt) > s.uploadTTL {
		return nil, ErrNotFound
	}
	return u, nil
}

// DeleteUpload removes the upload if present.
func (s *MemoryStore) DeleteUpload(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.uploads, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
