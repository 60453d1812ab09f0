package schema

import (
	"encoding/json"
	"fmt"
)

// Attachment content types.
const (
	ContentTypeAdaptiveCard     = "application/vnd.microsoft.card.adaptive"
	ContentTypeHeroCard         = "application/vnd.microsoft.card.hero"
	ContentTypeFileConsent      = "application/vnd.microsoft.teams.card.file.consent"
	ContentTypeFileInfo         = "application/vnd.microsoft.teams.card.file.info"
	ContentTypeFileDownloadInfo = "application/vnd.microsoft.teams.file.download.info"
	ContentTypeTextHTML         = "text/html"
)

// Attachment represents a message attachment.
type Attachment struct {
	ContentType  string `json:"contentType"`
	ContentURL   string `json:"contentUrl,omitempty"`
	Content      any    `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// DecodeContent converts the attachment content into v. Inbound content is
// decoded as generic JSON, so it is re-encoded into the typed value.
func (a Attachment) DecodeContent(v any) error {
	if a.Content == nil {
		return fmt.Errorf("%w: attachment %q has no content", ErrInvalidActivity, a.ContentType)
	}
	b, err := json.Marshal(a.Content)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HeroCard is a card with a title, text, images and buttons.
type HeroCard struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Images   []CardImage  `json:"images,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}

// Attachment wraps the hero card in an attachment.
func (h HeroCard) Attachment() Attachment {
	return Attachment{ContentType: ContentTypeHeroCard, Content: h}
}

// CardImage is an image shown on a hero card.
type CardImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Card action types.
const (
	ActionMessageBack = "messageBack"
	ActionIMBack      = "imBack"
	ActionOpenURL     = "openUrl"
	ActionInvoke      = "invoke"
)

// CardAction represents a button action.
type CardAction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Value       any    `json:"value,omitempty"`
}
