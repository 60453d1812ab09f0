package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/bot/bottest"
	"github.com/teamsbots/teamsbots/internal/schema"
)

type fakeProfiles struct{}

func (fakeProfiles) Enrich(_ context.Context, a *schema.TeamsChannelAccount) {
	if a.UserPrincipalName == "" {
		a.UserPrincipalName = "ada@contoso.com"
	}
}

func setup(t *testing.T, opts Options) (*bot.App, *bottest.Connector) {
	t.Helper()
	conn := bottest.NewConnector()
	app := bot.New(Name, conn)
	Register(app, opts)
	return app, conn
}

func heroOf(t *testing.T, a *schema.Activity) schema.HeroCard {
	t.Helper()
	require.Len(t, a.Attachments, 1)
	require.Equal(t, schema.ContentTypeHeroCard, a.Attachments[0].ContentType)
	var card schema.HeroCard
	require.NoError(t, a.Attachments[0].DecodeContent(&card))
	return card
}

func TestTypingIndicatorFirst(t *testing.T) {
	app, conn := setup(t, Options{})
	app.Process(context.Background(), bottest.Message("hi"))

	calls := conn.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, schema.ActivityTypeTyping, calls[0].Activity.Type)
}

func TestWelcomeCard(t *testing.T) {
	app, conn := setup(t, Options{})
	app.Process(context.Background(), bottest.Message("<at>Bot</at>   hello"))

	sent := conn.Sent()
	require.Len(t, sent, 1)
	card := heroOf(t, sent[0])
	assert.Equal(t, "Welcome Card", card.Title)
	assert.Equal(t, "Click the buttons.", card.Text)

	var titles []string
	for _, b := range card.Buttons {
		titles = append(titles, b.Title)
		assert.Equal(t, schema.ActionMessageBack, b.Type)
	}
	assert.Equal(t, []string{"Who am I?", "Find me in Adaptive Card", "Delete card", "Send Immersive Reader Card", "Update Card"}, titles)
	assert.Equal(t, map[string]any{"count": float64(0)}, card.Buttons[4].Value)
}

func TestUpdateCard(t *testing.T) {
	t.Run("updates the card it was clicked on", func(t *testing.T) {
		app, conn := setup(t, Options{})
		a := bottest.Message("updatecardaction")
		a.ReplyToID = "card-1"
		a.Value = json.RawMessage(`{"count":2}`)
		app.Process(context.Background(), a)

		var update *bottest.Call
		for _, c := range conn.Calls() {
			if c.Op == "update" {
				c := c
				update = &c
			}
		}
		require.NotNil(t, update)
		assert.Equal(t, "card-1", update.ActivityID)

		card := heroOf(t, update.Activity)
		assert.Equal(t, "Updated card", card.Title)
		assert.Equal(t, "Update count 3", card.Text)
	})

	t.Run("string value and no reply id sends new card", func(t *testing.T) {
		app, conn := setup(t, Options{})
		a := bottest.Message("update")
		a.Value = json.RawMessage(`"{\"count\": 4}"`)
		app.Process(context.Background(), a)

		sent := conn.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "Update count 5", heroOf(t, sent[0]).Text)
	})
}

func TestWhoAmI(t *testing.T) {
	app, conn := setup(t, Options{})
	conn.Members["29:user"] = schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "29:user", Name: "Ada (Teams)"}}

	app.Process(context.Background(), bottest.Message("whoami"))
	assert.Equal(t, []string{"You are: Ada (Teams)"}, conn.Texts())
}

func TestWhoAmI_MemberNotFound(t *testing.T) {
	app, conn := setup(t, Options{})
	app.Process(context.Background(), bottest.Message("who"))

	assert.Equal(t, []string{MemberNotFoundText}, conn.Texts())
}

func TestMentionCard(t *testing.T) {
	app, conn := setup(t, Options{Profiles: fakeProfiles{}})
	conn.Members["29:user"] = schema.TeamsChannelAccount{
		ChannelAccount: schema.ChannelAccount{ID: "29:user", Name: "Ada", AADObjectID: "aad-user"},
	}

	app.Process(context.Background(), bottest.Message("mention me"))

	sent := conn.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Attachments, 1)
	att := sent[0].Attachments[0]
	assert.Equal(t, schema.ContentTypeAdaptiveCard, att.ContentType)

	b, err := json.Marshal(att.Content)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "Hello \\u003cat\\u003eAda UPN\\u003c/at\\u003e")
	assert.Contains(t, s, `"id":"ada@contoso.com"`)
	assert.Contains(t, s, `"id":"aad-user"`)
	assert.NotContains(t, s, "${")
}

func TestImmersiveReader(t *testing.T) {
	app, conn := setup(t, Options{})
	app.Process(context.Background(), bottest.Message("immersivereader"))

	sent := conn.Sent()
	require.Len(t, sent, 1)
	content, ok := sent[0].Attachments[0].Content.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, content["speak"], "Flight KL0605")
}

func TestDeleteCard(t *testing.T) {
	t.Run("no reply id", func(t *testing.T) {
		app, conn := setup(t, Options{})
		app.Process(context.Background(), bottest.Message("deletecard"))
		assert.Equal(t, []string{NoCardText}, conn.Texts())
	})

	t.Run("deletes the card", func(t *testing.T) {
		app, conn := setup(t, Options{})
		a := bottest.Message("deletecard")
		a.ReplyToID = "card-9"
		app.Process(context.Background(), a)

		var deleted []string
		for _, c := range conn.Calls() {
			if c.Op == "delete" {
				deleted = append(deleted, c.ActivityID)
			}
		}
		assert.Equal(t, []string{"card-9"}, deleted)
		assert.Empty(t, conn.Texts())
	})

	t.Run("failure is reported", func(t *testing.T) {
		app, conn := setup(t, Options{})
		conn.DeleteErr = errors.New("forbidden")
		a := bottest.Message("delete")
		a.ReplyToID = "card-9"
		app.Process(context.Background(), a)
		assert.Equal(t, []string{"Could not delete the card: forbidden"}, conn.Texts())
	})
}

func TestMembersAdded(t *testing.T) {
	ada := schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "29:ada", Name: "ada"}, GivenName: "Ada", Surname: "Lovelace"}
	bob := schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "29:bob", Name: "Bob"}}
	self := schema.TeamsChannelAccount{ChannelAccount: schema.ChannelAccount{ID: "28:bot"}}

	app, conn := setup(t, Options{})
	app.Process(context.Background(), bottest.MembersAdded(schema.ConversationTypeChannel, ada, self, bob))
	assert.Equal(t, []string{"Welcome to the team Ada Lovelace", "Welcome to the team Bob"}, conn.Texts())

	app, conn = setup(t, Options{})
	app.Process(context.Background(), bottest.MembersAdded(schema.ConversationTypePersonal, ada))
	assert.Empty(t, conn.Texts())
}

func TestUpdateCount(t *testing.T) {
	assert.Equal(t, 0, updateCount(nil))
	assert.Equal(t, 7, updateCount(json.RawMessage(`{"count":7}`)))
	assert.Equal(t, 7, updateCount(json.RawMessage(`"{\"count\":7}"`)))
	assert.Equal(t, 0, updateCount(json.RawMessage(`"garbage"`)))
}
