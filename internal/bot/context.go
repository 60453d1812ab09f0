package bot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Context is the turn state handed to handlers.
type Context struct {
	Activity *schema.Activity

	app    *App
	logger zerolog.Logger
}

// Logger returns a logger tagged with the activity.
func (c *Context) Logger() *zerolog.Logger {
	return &c.logger
}

// App returns the app dispatching the activity.
func (c *Context) App() *App {
	return c.app
}

// Send sends a text message to the conversation.
func (c *Context) Send(ctx context.Context, text string) (*connector.ResourceResponse, error) {
	return c.SendActivity(ctx, schema.NewMessage(text))
}

// SendActivity sends an activity to the conversation.
func (c *Context) SendActivity(ctx context.Context, a *schema.Activity) (*connector.ResourceResponse, error) {
	a.ApplyReply(c.Activity)
	return c.app.connector.SendToConversation(ctx, a.ServiceURL, a.Conversation.ID, a)
}

// Reply sends an activity threaded under the inbound activity.
func (c *Context) Reply(ctx context.Context, a *schema.Activity) (*connector.ResourceResponse, error) {
	a.ApplyReply(c.Activity)
	return c.app.connector.ReplyToActivity(ctx, a.ServiceURL, a.Conversation.ID, c.Activity.ID, a)
}

// SendTyping shows the typing indicator.
func (c *Context) SendTyping(ctx context.Context) error {
	_, err := c.SendActivity(ctx, schema.NewTyping())
	return err
}

// Update replaces a previously sent activity.
func (c *Context) Update(ctx context.Context, activityID string, a *schema.Activity) (*connector.ResourceResponse, error) {
	a.ApplyReply(c.Activity)
	a.ReplyToID = ""
	return c.app.connector.UpdateActivity(ctx, a.ServiceURL, a.Conversation.ID, activityID, a)
}

// Delete removes a previously sent activity.
func (c *Context) Delete(ctx context.Context, activityID string) error {
	return c.app.connector.DeleteActivity(ctx, c.Activity.ServiceURL, c.Activity.Conversation.ID, activityID)
}

// Member fetches a member of the conversation.
func (c *Context) Member(ctx context.Context, memberID string) (*schema.TeamsChannelAccount, error) {
	return c.app.connector.GetConversationMember(ctx, c.Activity.ServiceURL, c.Activity.Conversation.ID, memberID)
}

// Members fetches every member of the conversation.
func (c *Context) Members(ctx context.Context) ([]schema.TeamsChannelAccount, error) {
	return c.app.connector.GetConversationMembers(ctx, c.Activity.ServiceURL, c.Activity.Conversation.ID)
}

// Sender returns the member who sent the activity, falling back to the From
// account when the connector lookup fails.
func (c *Context) Sender(ctx context.Context) schema.TeamsChannelAccount {
	m, err := c.Member(ctx, c.Activity.From.ID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Member lookup failed, using sender account")
		return schema.TeamsChannelAccount{ChannelAccount: c.Activity.From}
	}
	return *m
}
