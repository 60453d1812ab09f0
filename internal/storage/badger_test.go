package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/teamsbots/teamsbots/internal/schema"
)

func setupTestStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore(t.TempDir(), BadgerOptions{UploadTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testReference(aadID, conversationID string) schema.ConversationReference {
	return schema.ConversationReference{
		ActivityID:   "activity-1",
		User:         schema.ChannelAccount{ID: "29:user", Name: "Ada", AADObjectID: aadID},
		Bot:          schema.ChannelAccount{ID: "28:bot", Name: "Bot"},
		Conversation: schema.ConversationAccount{ID: conversationID, ConversationType: schema.ConversationTypePersonal},
		ChannelID:    "msteams",
		ServiceURL:   "https://smba.trafficmanager.net/emea/",
	}
}

// runStoreTests exercises the Store contract against any implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ReferenceCRUD", func(t *testing.T) {
		store := newStore(t)

		if _, err := store.GetReference("aad-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if err := store.SaveReference("aad-1", testReference("aad-1", "a:conv-1")); err != nil {
			t.Fatalf("SaveReference failed: %v", err)
		}

		got, err := store.GetReference("aad-1")
		if err != nil {
			t.Fatalf("GetReference failed: %v", err)
		}
		if got.Key != "aad-1" {
			t.Errorf("expected key aad-1, got %s", got.Key)
		}
		if got.Reference.Conversation.ID != "a:conv-1" {
			t.Errorf("expected conversation a:conv-1, got %s", got.Reference.Conversation.ID)
		}
		if got.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be set")
		}

		// Replace with a newer conversation.
		if err := store.SaveReference("aad-1", testReference("aad-1", "a:conv-2")); err != nil {
			t.Fatalf("SaveReference failed: %v", err)
		}
		got, _ = store.GetReference("aad-1")
		if got.Reference.Conversation.ID != "a:conv-2" {
			t.Errorf("expected replaced conversation a:conv-2, got %s", got.Reference.Conversation.ID)
		}

		if err := store.DeleteReference("aad-1"); err != nil {
			t.Fatalf("DeleteReference failed: %v", err)
		}
		if err := store.DeleteReference("aad-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("ListReferences", func(t *testing.T) {
		store := newStore(t)

		refs, err := store.ListReferences()
		if err != nil {
			t.Fatalf("ListReferences failed: %v", err)
		}
		if len(refs) != 0 {
			t.Fatalf("expected empty list, got %d", len(refs))
		}

		for _, key := range []string{"c", "a", "b"} {
			if err := store.SaveReference(key, testReference(key, "conv-"+key)); err != nil {
				t.Fatalf("SaveReference failed: %v", err)
			}
		}

		refs, err = store.ListReferences()
		if err != nil {
			t.Fatalf("ListReferences failed: %v", err)
		}
		if len(refs) != 3 {
			t.Fatalf("expected 3 references, got %d", len(refs))
		}
		for i, want := range []string{"a", "b", "c"} {
			if refs[i].Key != want {
				t.Errorf("refs[%d]: expected %s, got %s", i, want, refs[i].Key)
			}
		}
	})

	t.Run("UploadTakeOnce", func(t *testing.T) {
		store := newStore(t)

		upload := &PendingUpload{
			ID:             "upload-1",
			Filename:       "report.pdf",
			ContentType:    "application/pdf",
			Content:        []byte("%PDF-1.4"),
			ConversationID: "a:conv-1",
		}
		if err := store.PutUpload(upload); err != nil {
			t.Fatalf("PutUpload failed: %v", err)
		}

		got, err := store.TakeUpload("upload-1")
		if err != nil {
			t.Fatalf("TakeUpload failed: %v", err)
		}
		if got.Filename != "report.pdf" || string(got.Content) != "%PDF-1.4" {
			t.Errorf("unexpected upload: %+v", got)
		}
		if got.Size() != 8 {
			t.Errorf("expected size 8, got %d", got.Size())
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		if _, err := store.TakeUpload("upload-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second take, got %v", err)
		}
	})

	t.Run("DeleteUpload", func(t *testing.T) {
		store := newStore(t)

		if err := store.PutUpload(&PendingUpload{ID: "upload-2", Filename: "a.txt"}); err != nil {
			t.Fatalf("PutUpload failed: %v", err)
		}
		if err := store.DeleteUpload("upload-2"); err != nil {
			t.Fatalf("DeleteUpload failed: %v", err)
		}
		if _, err := store.TakeUpload("upload-2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.DeleteUpload("missing"); err != nil {
			t.Fatalf("DeleteUpload of missing key should succeed, got %v", err)
		}
	})
}

func TestBadgerStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return setupTestStore(t) })
}

func TestBadgerStore_InMemory(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		store, err := NewBadgerStore("", BadgerOptions{InMemory: true})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBadgerStore(dir, BadgerOptions{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.SaveReference("aad-1", testReference("aad-1", "a:conv-1")); err != nil {
		t.Fatalf("SaveReference failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, err = NewBadgerStore(dir, BadgerOptions{})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.GetReference("aad-1")
	if err != nil {
		t.Fatalf("GetReference after reopen failed: %v", err)
	}
	if got.Reference.ServiceURL != "https://smba.trafficmanager.net/emea/" {
		t.Errorf("unexpected service url %s", got.Reference.ServiceURL)
	}
}
