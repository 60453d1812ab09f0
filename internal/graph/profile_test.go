package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsbots/teamsbots/internal/schema"
)

func ptr(s string) *string { return &s }

func newUser() models.Userable {
	u := models.NewUser()
	u.SetGivenName(ptr("Ada"))
	u.SetSurname(ptr("Lovelace"))
	u.SetDisplayName(ptr("Ada Lovelace"))
	u.SetUserPrincipalName(ptr("ada@example.com"))
	return u
}

func TestProfileLookup_CachesProfiles(t *testing.T) {
	calls := 0
	l := newProfileLookup(func(ctx context.Context, id string) (models.Userable, error) {
		calls++
		assert.Equal(t, "aad-1", id)
		return newUser(), nil
	}, zerolog.Nop())

	p, err := l.Profile(context.Background(), "aad-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.GivenName)
	assert.Equal(t, "ada@example.com", p.UserPrincipalName)
	assert.Empty(t, p.Mail)

	_, err = l.Profile(context.Background(), "aad-1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = l.Profile(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestProfileLookup_Enrich(t *testing.T) {
	l := newProfileLookup(func(ctx context.Context, id string) (models.Userable, error) {
		return newUser(), nil
	}, zerolog.Nop())

	account := schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "29:1", Name: "Ada", AADObjectID: "aad-1"}}
	l.Enrich(context.Background(), &account)

	assert.Equal(t, "Ada Lovelace", account.DisplayName())
	assert.Equal(t, "ada@example.com", account.UserPrincipalName)
	assert.Equal(t, "Ada", account.Name)
}

func TestProfileLookup_EnrichIgnoresFailures(t *testing.T) {
	l := newProfileLookup(func(ctx context.Context, id string) (models.Userable, error) {
		return nil, errors.New("forbidden")
	}, zerolog.Nop())

	account := schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "29:1", Name: "Ada", AADObjectID: "aad-1"}}
	l.Enrich(context.Background(), &account)
	assert.Equal(t, "Ada", account.DisplayName())

	var nilLookup *ProfileLookup
	nilLookup.Enrich(context.Background(), &account)
	p, err := nilLookup.Profile(context.Background(), "aad-1")
	assert.NoError(t, err)
	assert.Nil(t, p)
}
