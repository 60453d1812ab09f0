// Package schema defines the Bot Framework activity model used by Microsoft
// Teams, together with the Teams specific invoke payloads.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Activity types.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeInvoke             = "invoke"
	ActivityTypeTyping             = "typing"
	ActivityTypeMessageReaction    = "messageReaction"
	ActivityTypeInstallationUpdate = "installationUpdate"
)

// Text formats.
const (
	TextFormatMarkdown = "markdown"
	TextFormatPlain    = "plain"
	TextFormatXML      = "xml"
)

// Conversation types reported by Teams.
const (
	ConversationTypePersonal  = "personal"
	ConversationTypeGroupChat = "groupChat"
	ConversationTypeChannel   = "channel"
)

// ErrInvalidActivity is returned for activities missing routing fields.
var ErrInvalidActivity = errors.New("invalid activity format")

// Activity represents a Bot Framework activity.
type Activity struct {
	Type             string                `json:"type"`
	ID               string                `json:"id,omitempty"`
	Timestamp        string                `json:"timestamp,omitempty"`
	LocalTimestamp   string                `json:"localTimestamp,omitempty"`
	ServiceURL       string                `json:"serviceUrl,omitempty"`
	ChannelID        string                `json:"channelId,omitempty"`
	From             ChannelAccount        `json:"from,omitzero"`
	Conversation     ConversationAccount   `json:"conversation,omitzero"`
	Recipient        ChannelAccount        `json:"recipient,omitzero"`
	Text             string                `json:"text,omitempty"`
	TextFormat       string                `json:"textFormat,omitempty"`
	Summary          string                `json:"summary,omitempty"`
	Locale           string                `json:"locale,omitempty"`
	Entities         []Entity              `json:"entities,omitempty"`
	Attachments      []Attachment          `json:"attachments,omitempty"`
	AttachmentLayout string                `json:"attachmentLayout,omitempty"`
	ChannelData      *ChannelData          `json:"channelData,omitempty"`
	Value            json.RawMessage       `json:"value,omitempty"`
	Name             string                `json:"name,omitempty"`
	ReplyToID        string                `json:"replyToId,omitempty"`
	MembersAdded     []TeamsChannelAccount `json:"membersAdded,omitempty"`
	MembersRemoved   []TeamsChannelAccount `json:"membersRemoved,omitempty"`
	SuggestedActions *SuggestedActions     `json:"suggestedActions,omitempty"`
}

// ChannelAccount represents a Teams user or bot.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// TeamsChannelAccount is a ChannelAccount with the profile fields returned by
// the Teams member APIs.
type TeamsChannelAccount struct {
	ChannelAccount
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	Email             string `json:"email,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
	UserRole          string `json:"userRole,omitempty"`
}

// DisplayName returns "GivenName Surname" when both are known and Name
// otherwise.
func (a TeamsChannelAccount) DisplayName() string {
	if a.GivenName != "" && a.Surname != "" {
		return a.GivenName + " " + a.Surname
	}
	return a.Name
}

// ConversationAccount represents a Teams conversation.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// ChannelData contains Teams specific data.
type ChannelData struct {
	EventType string     `json:"eventType,omitempty"`
	Channel   *TeamsInfo `json:"channel,omitempty"`
	Team      *TeamsInfo `json:"team,omitempty"`
	Tenant    *TeamsInfo `json:"tenant,omitempty"`
}

// TeamsInfo identifies a team, channel or tenant.
type TeamsInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// SuggestedActions provides quick action buttons.
type SuggestedActions struct {
	To      []string     `json:"to,omitempty"`
	Actions []CardAction `json:"actions"`
}

// NewMessage returns a message activity with text.
func NewMessage(text string) *Activity {
	return &Activity{Type: ActivityTypeMessage, Text: text}
}

// NewTyping returns a typing indicator activity.
func NewTyping() *Activity {
	return &Activity{Type: ActivityTypeTyping}
}

// Validate checks the fields needed to route a reply.
func (a *Activity) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidActivity)
	}
	if a.ServiceURL == "" {
		return fmt.Errorf("%w: missing serviceUrl", ErrInvalidActivity)
	}
	if a.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidActivity)
	}
	return nil
}

// IsPersonal reports whether the activity came from a one to one chat.
func (a *Activity) IsPersonal() bool {
	return a.Conversation.ConversationType == ConversationTypePersonal
}

// TeamID returns the team id from the channel data, if any.
func (a *Activity) TeamID() string {
	if a.ChannelData == nil || a.ChannelData.Team == nil {
		return ""
	}
	return a.ChannelData.Team.ID
}

// DecodeValue unmarshals the activity value into v.
func (a *Activity) DecodeValue(v any) error {
	if len(a.Value) == 0 {
		return fmt.Errorf("%w: missing value", ErrInvalidActivity)
	}
	if err := json.Unmarshal(a.Value, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	return nil
}

// SetValue marshals v into the activity value.
func (a *Activity) SetValue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Value = b
	return nil
}

// ApplyReply fills routing fields of an outgoing activity so it answers in.
func (a *Activity) ApplyReply(in *Activity) {
	if a.Type == "" {
		a.Type = ActivityTypeMessage
	}
	a.From = in.Recipient
	a.Recipient = in.From
	a.Conversation = in.Conversation
	a.ServiceURL = in.ServiceURL
	a.ChannelID = in.ChannelID
	a.ReplyToID = in.ID
	if a.Locale == "" {
		a.Locale = in.Locale
	}
}

// AddMention appends a mention entity for account and returns its text.
func (a *Activity) AddMention(account ChannelAccount) string {
	m := NewMention(account)
	a.Entities = append(a.Entities, m)
	return m.Text
}

// Mentions returns every mention entity.
func (a *Activity) Mentions() []Entity {
	var out []Entity
	for _, e := range a.Entities {
		if e.Type == EntityTypeMention && e.Mentioned != nil {
			out = append(out, e)
		}
	}
	return out
}

// IsBotAdded reports whether the recipient appears in MembersAdded.
func (a *Activity) IsBotAdded() bool {
	for _, m := range a.MembersAdded {
		if m.ID == a.Recipient.ID {
			return true
		}
	}
	return false
}

// TrimmedText returns the activity text with surrounding space removed.
func (a *Activity) TrimmedText() string {
	return strings.TrimSpace(a.Text)
}
