// Package storage keeps conversation references for proactive messaging and
// files waiting for upload consent.
package storage

import (
	"errors"
	"time"

	"github.com/teamsbots/teamsbots/internal/schema"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// StoredReference is a conversation reference with its key.
type StoredReference struct {
	Key       string                       `json:"key"`
	Reference schema.ConversationReference `json:"reference"`
	UpdatedAt time.Time                    `json:"updatedAt"`
}

// ConversationStore provides conversation reference persistence.
type ConversationStore interface {
	// SaveReference stores or replaces the reference under key.
	SaveReference(key string, ref schema.ConversationReference) error
	// GetReference returns the reference for key. Returns ErrNotFound if missing.
	GetReference(key string) (*StoredReference, error)
	// ListReferences returns all references ordered by key.
	ListReferences() ([]StoredReference, error)
	// DeleteReference removes the reference for key. Returns ErrNotFound if missing.
	DeleteReference(key string) error
}

// PendingUpload is a file received from a user, held until they answer the
// consent card.
type PendingUpload struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"contentType,omitempty"`
	Content        []byte    `json:"content"`
	ConversationID string    `json:"conversationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Size returns the content length in bytes.
func (u *PendingUpload) Size() int64 {
	return int64(len(u.Content))
}

// UploadStore provides pending upload persistence.
type UploadStore interface {
	// PutUpload stores an upload under its ID.
	PutUpload(u *PendingUpload) error
	// TakeUpload returns and removes the upload. Returns ErrNotFound if missing.
	TakeUpload(id string) (*PendingUpload, error)
	// DeleteUpload removes the upload if present.
	DeleteUpload(id string) error
}

// Store combines every store and releases its resources on Close.
type Store interface {
	ConversationStore
	UploadStore
	Close() error
}
