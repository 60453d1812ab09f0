// Package cards builds Adaptive Card payloads and expands JSON card
// templates.
package cards

import "github.com/teamsbots/teamsbots/internal/schema"

const (
	// SchemaURL is the Adaptive Card JSON schema.
	SchemaURL = "http://adaptivecards.io/schemas/adaptive-card.json"
	// DefaultVersion is the card version used by New.
	DefaultVersion = "1.5"
)

// Card represents a Microsoft Adaptive Card.
type Card struct {
	Schema  string    `json:"$schema,omitempty"`
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Speak   string    `json:"speak,omitempty"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
	MSTeams *MSTeams  `json:"msteams,omitempty"`
}

// MSTeams carries Teams specific card properties.
type MSTeams struct {
	Width    string          `json:"width,omitempty"`
	Entities []schema.Entity `json:"entities,omitempty"`
}

// Element represents a body element. Only the fields relevant to Type are
// set.
type Element struct {
	Type                string    `json:"type"`
	ID                  string    `json:"id,omitempty"`
	Text                string    `json:"text,omitempty"`
	Size                string    `json:"size,omitempty"`
	Weight              string    `json:"weight,omitempty"`
	Color               string    `json:"color,omitempty"`
	HorizontalAlignment string    `json:"horizontalAlignment,omitempty"`
	Spacing             string    `json:"spacing,omitempty"`
	Wrap                bool      `json:"wrap,omitempty"`
	Separator           bool      `json:"separator,omitempty"`
	IsSubtle            bool      `json:"isSubtle,omitempty"`
	IsVisible           *bool     `json:"isVisible,omitempty"`
	URL                 string    `json:"url,omitempty"`
	AltText             string    `json:"altText,omitempty"`
	Columns             []Column  `json:"columns,omitempty"`
	Facts               []Fact    `json:"facts,omitempty"`
	Items               []Element `json:"items,omitempty"`
	Label               string    `json:"label,omitempty"`
	Placeholder         string    `json:"placeholder,omitempty"`
	IsMultiline         bool      `json:"isMultiline,omitempty"`
	IsRequired          bool      `json:"isRequired,omitempty"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
}

// Column represents a column in a ColumnSet.
type Column struct {
	Type  string    `json:"type"`
	Width string    `json:"width,omitempty"`
	Items []Element `json:"items,omitempty"`
}

// Fact represents a fact in a FactSet.
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action represents a card action.
type Action struct {
	Type             string   `json:"type"`
	Title            string   `json:"title,omitempty"`
	URL              string   `json:"url,omitempty"`
	Verb             string   `json:"verb,omitempty"`
	Data             any      `json:"data,omitempty"`
	Style            string   `json:"style,omitempty"`
	Card             *Card    `json:"card,omitempty"`
	TargetElements   []string `json:"targetElements,omitempty"`
	AssociatedInputs string   `json:"associatedInputs,omitempty"`
}

// New returns an empty card of DefaultVersion with body.
func New(body ...Element) *Card {
	return &Card{
		Type:    "AdaptiveCard",
		Version: DefaultVersion,
		Body:    body,
	}
}

// WithSchema sets the $schema property.
func (c *Card) WithSchema() *Card {
	c.Schema = SchemaURL
	return c
}

// WithVersion overrides the card version.
func (c *Card) WithVersion(v string) *Card {
	c.Version = v
	return c
}

// WithActions appends actions.
func (c *Card) WithActions(actions ...Action) *Card {
	c.Actions = append(c.Actions, actions...)
	return c
}

// Attachment wraps the card in a message attachment.
func (c *Card) Attachment() schema.Attachment {
	return schema.Attachment{ContentType: schema.ContentTypeAdaptiveCard, Content: c}
}

// TextBlock returns a wrapped TextBlock.
func TextBlock(text string) Element {
	return Element{Type: "TextBlock", Text: text, Wrap: true}
}

// Heading returns a large bold TextBlock.
func Heading(text string) Element {
	return Element{Type: "TextBlock", Text: text, Size: "Large", Weight: "Bolder", Wrap: true}
}

// Image returns an Image element.
func Image(url, alt string) Element {
	return Element{Type: "Image", URL: url, AltText: alt}
}

// TextInput returns an Input.Text element.
func TextInput(id string) Element {
	return Element{Type: "Input.Text", ID: id}
}

// FactSet returns a FactSet element.
func FactSet(facts ...Fact) Element {
	return Element{Type: "FactSet", Facts: facts}
}

// Hidden marks the element as initially invisible.
func (e Element) Hidden() Element {
	visible := false
	e.IsVisible = &visible
	return e
}

// OpenURL returns an Action.OpenUrl.
func OpenURL(title, url string) Action {
	return Action{Type: "Action.OpenUrl", Title: title, URL: url}
}

// Submit returns an Action.Submit.
func Submit(title string, data any) Action {
	return Action{Type: "Action.Submit", Title: title, Data: data}
}

// ShowCard returns an Action.ShowCard revealing card.
func ShowCard(title string, card *Card) Action {
	return Action{Type: "Action.ShowCard", Title: title, Card: card}
}

// ToggleVisibility returns an Action.ToggleVisibility for the given ids.
func ToggleVisibility(title string, targets ...string) Action {
	return Action{Type: "Action.ToggleVisibility", Title: title, TargetElements: targets}
}

// Execute returns an Action.Execute. Teams delivers it as an
// adaptiveCard/action invoke.
func Execute(title, verb string, data any) Action {
	return Action{Type: "Action.Execute", Title: title, Verb: verb, Data: data}
}

// TaskFetch returns an Action.Submit that opens a task module. The value of
// data is echoed back in the task/fetch request under "data".
func TaskFetch(title string, data any) Action {
	return Submit(title, map[string]any{
		"msteams": map[string]string{"type": "task/fetch"},
		"data":    data,
	})
}
