package proactive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
)

type sent struct {
	conversationID string
	text           string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn string
	done   chan struct{}
}

func (f *fakeSender) Send(_ context.Context, ref schema.ConversationReference, a *schema.Activity) (*connector.ResourceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref.Conversation.ID == f.failOn {
		return nil, errors.New("gone")
	}
	ref.Apply(a)
	f.sent = append(f.sent, sent{conversationID: a.Conversation.ID, text: a.Text})
	if f.done != nil {
		f.done <- struct{}{}
	}
	return &connector.ResourceResponse{ID: "1"}, nil
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func seed(t *testing.T, store storage.ConversationStore, keys ...string) {
	t.Helper()
	for _, key := range keys {
		err := store.SaveReference(key, schema.ConversationReference{
			User:         schema.ChannelAccount{ID: "29:" + key, AADObjectID: key},
			Bot:          schema.ChannelAccount{ID: "28:bot"},
			Conversation: schema.ConversationAccount{ID: "conv-" + key},
			ChannelID:    "msteams",
			ServiceURL:   "https://smba.example.com/",
		})
		require.NoError(t, err)
	}
}

func TestNotifier_Notify(t *testing.T) {
	store := storage.NewMemoryStore(0)
	sender := &fakeSender{}
	n := New(store, sender)
	defer n.Close()

	ok, err := n.Notify(context.Background(), "unknown", "hello")
	require.NoError(t, err)
	assert.False(t, ok)

	seed(t, store, "aad-1")
	ok, err = n.Notify(context.Background(), "aad-1", "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []sent{{conversationID: "conv-aad-1", text: "hello"}}, sender.messages())
}

func TestNotifier_NotifyAfter(t *testing.T) {
	store := storage.NewMemoryStore(0)
	seed(t, store, "aad-1")
	sender := &fakeSender{done: make(chan struct{}, 1)}
	n := New(store, sender)
	defer n.Close()

	require.NoError(t, n.NotifyAfter("aad-1", 10*time.Millisecond, "reminder"))

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message was not sent")
	}
	assert.Equal(t, "reminder", sender.messages()[0].text)
}

func TestNotifier_CloseDropsPending(t *testing.T) {
	store := storage.NewMemoryStore(0)
	seed(t, store, "aad-1")
	sender := &fakeSender{}
	n := New(store, sender)

	require.NoError(t, n.NotifyAfter("aad-1", time.Hour, "never"))
	n.Close()

	assert.Empty(t, sender.messages())
	assert.ErrorIs(t, n.NotifyAfter("aad-1", time.Millisecond, "late"), ErrClosed)
}

func TestNotifier_Broadcast(t *testing.T) {
	store := storage.NewMemoryStore(0)
	seed(t, store, "a", "b", "c")
	sender := &fakeSender{failOn: "conv-b"}
	n := New(store, sender)
	defer n.Close()

	result, err := n.Broadcast(context.Background(), "all hands")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "b: gone")
}

func TestNotifier_Schedule(t *testing.T) {
	n := New(storage.NewMemoryStore(0), &fakeSender{})
	defer n.Close()

	_, err := n.Schedule("0 9 * * 1-5", "standup")
	require.NoError(t, err)

	_, err = n.Schedule("@daily", "digest")
	require.NoError(t, err)

	_, err = n.Schedule("not a schedule", "x")
	assert.Error(t, err)
}

func TestNotifier_RoutesByBot(t *testing.T) {
	store := storage.NewMemoryStore(0)
	seed(t, store, "quickstart:aad-1", "cards:aad-1", "retired:aad-1")
	quickstart := &fakeSender{}
	cards := &fakeSender{}
	n := New(store, nil, WithSender("quickstart", quickstart), WithSender("cards", cards))
	defer n.Close()

	ok, err := n.Notify(context.Background(), "quickstart:aad-1", "reminder")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []sent{{"conv-quickstart:aad-1", "reminder"}}, quickstart.messages())
	assert.Empty(t, cards.messages())

	ok, err = n.Notify(context.Background(), "retired:aad-1", "hello")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrNoSender)

	result, err := n.Broadcast(context.Background(), "all hands")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, cards.messages(), 1)
	assert.Len(t, quickstart.messages(), 2)
}
