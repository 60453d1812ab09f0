package schema

import (
	"regexp"
	"strings"
)

// EntityTypeMention is the entity type for @mentions.
const EntityTypeMention = "mention"

// Entity represents a message entity.
type Entity struct {
	Type      string          `json:"type"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// NewMention returns a mention entity whose text is <at>Name</at>.
func NewMention(account ChannelAccount) Entity {
	mentioned := account
	return Entity{
		Type:      EntityTypeMention,
		Mentioned: &mentioned,
		Text:      "<at>" + account.Name + "</at>",
	}
}

var (
	atTag      = regexp.MustCompile(`(?is)<at>.*?</at>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// RemoveMentionText removes the text of every mention entity addressed to id
// from text. An empty id removes all mentions.
func RemoveMentionText(text string, entities []Entity, id string) string {
	for _, e := range entities {
		if e.Type != EntityTypeMention || e.Mentioned == nil || e.Text == "" {
			continue
		}
		if id != "" && e.Mentioned.ID != id {
			continue
		}
		text = strings.ReplaceAll(text, e.Text, "")
	}
	return strings.TrimSpace(text)
}

// StripAtTags removes all <at>...</at> spans and collapses whitespace.
func StripAtTags(text string) string {
	text = atTag.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// RemoveRecipientMention strips the bot's own mention from the activity text
// and returns the result.
func (a *Activity) RemoveRecipientMention() string {
	a.Text = RemoveMentionText(a.Text, a.Entities, a.Recipient.ID)
	return a.Text
}
