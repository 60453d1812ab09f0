// Package graph looks up user profiles in Microsoft Graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/schema"
)

// Scope is the Graph application permission scope.
const Scope = "https://graph.microsoft.com/.default"

// ErrNoUser is returned for an empty AAD object id.
var ErrNoUser = errors.New("no aad object id")

var profileFields = []string{"givenName", "surname", "displayName", "userPrincipalName", "mail"}

// Profile is the subset of a Graph user the samples show.
type Profile struct {
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	Mail              string `json:"mail,omitempty"`
}

type fetchFunc func(ctx context.Context, aadObjectID string) (models.Userable, error)

type cached struct {
	profile *Profile
	at      time.Time
}

// ProfileLookup fetches and caches Graph profiles. A nil lookup returns no
// profiles.
type ProfileLookup struct {
	fetch  fetchFunc
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// NewProfileLookup creates a lookup using cred for app only Graph access.
func NewProfileLookup(cred azcore.TokenCredential, logger zerolog.Logger) (*ProfileLookup, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{Scope})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}

	fetch := func(ctx context.Context, id string) (models.Userable, error) {
		return client.Users().ByUserId(id).Get(ctx, &users.UserItemRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{Select: profileFields},
		})
	}
	return newProfileLookup(fetch, logger), nil
}

func newProfileLookup(fetch fetchFunc, logger zerolog.Logger) *ProfileLookup {
	return &ProfileLookup{
		fetch:  fetch,
		ttl:    15 * time.Minute,
		logger: logger.With().Str("component", "graph").Logger(),
		cache:  make(map[string]cached),
	}
}

// Profile returns the Graph profile of an AAD user.
func (l *ProfileLookup) Profile(ctx context.Context, aadObjectID string) (*Profile, error) {
	if l == nil {
		return nil, nil
	}
	if aadObjectID == "" {
		return nil, ErrNoUser
	}

	l.mu.Lock()
	c, ok := l.cache[aadObjectID]
	l.mu.Unlock()
	if ok && time.Since(c.at) < l.ttl {
		return c.profile, nil
	}

	user, err := l.fetch(ctx, aadObjectID)
	if err != nil {
		return nil, fmt.Errorf("graph user lookup: %w", err)
	}

	p := &Profile{
		GivenName:         deref(user.GetGivenName()),
		Surname:           deref(user.GetSurname()),
		DisplayName:       deref(user.GetDisplayName()),
		UserPrincipalName: deref(user.GetUserPrincipalName()),
		Mail:              deref(user.GetMail()),
	}

	l.mu.Lock()
	l.cache[aadObjectID] = cached{profile: p, at: time.Now()}
	l.mu.Unlock()

	return p, nil
}

// Enrich fills missing name fields of account from Graph. Lookup failures
// are logged and leave account unchanged.
func (l *ProfileLookup) Enrich(ctx context.Context, account *schema.TeamsChannelAccount) {
	if l == nil || account.AADObjectID == "" {
		return
	}
	if account.GivenName != "" && account.Surname != "" && account.UserPrincipalName != "" {
		return
	}

	p, err := l.Profile(ctx, account.AADObjectID)
	if err != nil {
		l.logger.Debug().Err(err).Str("aad_object_id", account.AADObjectID).Msg("Profile lookup failed")
		return
	}

	if account.GivenName == "" {
		account.GivenName = p.GivenName
	}
	if account.Surname == "" {
		account.Surname = p.Surname
	}
	if account.UserPrincipalName == "" {
		account.UserPrincipalName = p.UserPrincipalName
	}
	if account.Email == "" {
		account.Email = p.Mail
	}
	if account.Name == "" {
		account.Name = p.DisplayName
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
