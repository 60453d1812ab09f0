package schema

import "strings"

// ConversationReference holds what is needed to message a conversation
// outside of an inbound activity.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl"`
	Locale       string              `json:"locale,omitempty"`
}

// Reference returns the conversation reference of an inbound activity.
func (a *Activity) Reference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// Apply fills routing fields of an outgoing proactive activity.
func (r ConversationReference) Apply(a *Activity) {
	if a.Type == "" {
		a.Type = ActivityTypeMessage
	}
	a.From = r.Bot
	a.Recipient = r.User
	a.Conversation = r.Conversation
	a.ChannelID = r.ChannelID
	a.ServiceURL = r.ServiceURL
	if a.Locale == "" {
		a.Locale = r.Locale
	}
}

// Key returns the user's AAD object id.
func (r ConversationReference) Key() string {
	return r.User.AADObjectID
}

// ReferenceKey scopes a user's AAD object id to the bot that talked to them,
// as "<bot>:<aad object id>". It is empty when either part is.
func ReferenceKey(bot, aadObjectID string) string {
	if bot == "" || aadObjectID == "" {
		return ""
	}
	return bot + ":" + aadObjectID
}

// SplitReferenceKey undoes ReferenceKey. An unscoped key yields an empty bot.
func SplitReferenceKey(key string) (bot, aadObjectID string) {
	if b, id, ok := strings.Cut(key, ":"); ok {
		return b, id
	}
	return "", key
}
