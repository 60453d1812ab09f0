// Package bottest provides an in-memory connector and activity builders for
// handler tests.
package bottest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// ServiceURL is the service url of activities built by this package.
const ServiceURL = "https://smba.example.com/teams/"

// Call is one connector call.
type Call struct {
	Op             string
	ConversationID string
	ActivityID     string
	Activity       *schema.Activity
}

// Connector records every call and serves members from a map.
type Connector struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int
	Members map[string]schema.TeamsChannelAccount
	// Err, when set, is returned by every call.
	Err error
	// DeleteErr, when set, is returned by DeleteActivity.
	DeleteErr error
}

// NewConnector returns an empty Connector.
func NewConnector() *Connector {
	return &Connector{Members: make(map[string]schema.TeamsChannelAccount)}
}

func (c *Connector) record(call Call) (*connector.ResourceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	c.calls = append(c.calls, call)
	c.nextID++
	return &connector.ResourceResponse{ID: fmt.Sprintf("sent-%d", c.nextID)}, nil
}

// SendToConversation implements bot.Connector.
func (c *Connector) SendToConversation(_ context.Context, _, conversationID string, a *schema.Activity) (*connector.ResourceResponse, error) {
	return c.record(Call{Op: "send", ConversationID: conversationID, Activity: a})
}

// ReplyToActivity implements bot.Connector.
func (c *Connector) ReplyToActivity(_ context.Context, _, conversationID, activityID string, a *schema.Activity) (*connector.ResourceResponse, error) {
	return c.record(Call{Op: "reply", ConversationID: conversationID, ActivityID: activityID, Activity: a})
}

// UpdateActivity implements bot.Connector.
func (c *Connector) UpdateActivity(_ context.Context, _, conversationID, activityID string, a *schema.Activity) (*connector.ResourceResponse, error) {
	return c.record(Call{Op: "update", ConversationID: conversationID, ActivityID: activityID, Activity: a})
}

// DeleteActivity implements bot.Connector.
func (c *Connector) DeleteActivity(_ context.Context, _, conversationID, activityID string) error {
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	_, err := c.record(Call{Op: "delete", ConversationID: conversationID, ActivityID: activityID})
	return err
}

// GetConversationMember implements bot.Connector.
func (c *Connector) GetConversationMember(_ context.Context, _, _, memberID string) (*schema.TeamsChannelAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	m, ok := c.Members[memberID]
	if !ok {
		return nil, &connector.Error{
			Operation:  "get_member",
			StatusCode: 404,
			Code:       connector.CodeMemberNotFound,
			Message:    "The member was not found.",
		}
	}
	return &m, nil
}

// GetConversationMembers implements bot.Connector.
func (c *Connector) GetConversationMembers(_ context.Context, _, _ string) ([]schema.TeamsChannelAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]schema.TeamsChannelAccount, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, m)
	}
	return out, nil
}

// Calls returns a copy of the recorded calls.
func (c *Connector) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Sent returns the activities sent or replied, skipping typing indicators.
func (c *Connector) Sent() []*schema.Activity {
	var out []*schema.Activity
	for _, call := range c.Calls() {
		if (call.Op == "send" || call.Op == "reply") && call.Activity.Type != schema.ActivityTypeTyping {
			out = append(out, call.Activity)
		}
	}
	return out
}

// Texts returns the text of every sent activity.
func (c *Connector) Texts() []string {
	var out []string
	for _, a := range c.Sent() {
		out = append(out, a.Text)
	}
	return out
}

// Message builds a personal chat message from user to the bot.
func Message(text string) *schema.Activity {
	return &schema.Activity{
		Type:       schema.ActivityTypeMessage,
		ID:         "incoming-1",
		ServiceURL: ServiceURL,
		ChannelID:  "msteams",
		From:       schema.ChannelAccount{ID: "29:user", Name: "Ada Lovelace", AADObjectID: "aad-user"},
		Recipient:  schema.ChannelAccount{ID: "28:bot", Name: "Bot"},
		Conversation: schema.ConversationAccount{
			ID:               "a:conversation",
			ConversationType: schema.ConversationTypePersonal,
			TenantID:         "tenant",
		},
		Text: text,
	}
}

// Invoke builds an invoke activity carrying value.
func Invoke(name string, value any) *schema.Activity {
	a := Message("")
	a.Type = schema.ActivityTypeInvoke
	a.Name = name
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			panic(err)
		}
		a.Value = b
	}
	return a
}

// MembersAdded builds a conversation update adding members.
func MembersAdded(conversationType string, members ...schema.TeamsChannelAccount) *schema.Activity {
	a := Message("")
	a.Type = schema.ActivityTypeConversationUpdate
	a.Conversation.ConversationType = conversationType
	a.MembersAdded = members
	return a
}
