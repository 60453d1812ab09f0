// Package taskmodules opens Teams dialogs from hero and adaptive cards and
// echoes what the user submits.
package taskmodules

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/teamsbots/teamsbots/internal/bot"
	adaptive "github.com/teamsbots/teamsbots/internal/cards"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Name is the sample name used in routes and metrics.
const Name = "taskmodules"

// Replies.
const (
	SubmittedText = "Task module submission received"
	ThanksText    = "Thanks!"
)

//go:embed pages/*.html
var pages embed.FS

// Dialog describes one of the task modules the cards can open.
type Dialog struct {
	ID          string
	Title       string
	ButtonTitle string
	Width       int
	Height      int
	// Path is the page served for URL dialogs. Card dialogs leave it empty.
	Path string
}

// Dialogs offered by the sample.
var (
	AdaptiveCardDialog = Dialog{ID: "AdaptiveCard", Title: "Adaptive Card: Inputs", ButtonTitle: "Adaptive Card", Width: 400, Height: 200}
	CustomFormDialog   = Dialog{ID: "CustomForm", Title: "Custom Form", ButtonTitle: "Custom Form", Width: 510, Height: 450, Path: "/customform"}
	YouTubeDialog      = Dialog{ID: "YouTube", Title: "YouTube Video", ButtonTitle: "YouTube", Width: 1000, Height: 700, Path: "/youtube"}
)

var dialogs = []Dialog{AdaptiveCardDialog, CustomFormDialog, YouTubeDialog}

// Options configures the sample.
type Options struct {
	// BaseURL is the public address the dialog pages are served from.
	BaseURL string
}

type handler struct {
	baseURL string
}

// Register installs the sample handlers on app.
func Register(app *bot.App, opts Options) {
	h := &handler{baseURL: strings.TrimRight(opts.BaseURL, "/")}
	app.OnMessage(h.onMessage)
	app.OnTaskFetch(h.onFetch)
	app.OnTaskSubmit(h.onSubmit)
}

// Routes serves the dialog pages.
func Routes(r chi.Router) {
	for _, d := range dialogs {
		if d.Path == "" {
			continue
		}
		file := "pages" + d.Path + ".html"
		r.Get(d.Path, func(w http.ResponseWriter, _ *http.Request) {
			b, err := pages.ReadFile(file)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(b)
		})
	}
}

func (h *handler) onMessage(ctx context.Context, c *bot.Context) error {
	msg := schema.NewMessage("")
	msg.Attachments = []schema.Attachment{HeroCard(), OptionsCard().Attachment()}
	_, err := c.SendActivity(ctx, msg)
	return err
}

func (h *handler) onFetch(_ context.Context, c *bot.Context, req schema.TaskModuleRequest) (*schema.TaskModuleResponse, error) {
	d := lookup(req.DataID())
	c.Logger().Debug().Str("dialog", d.ID).Msg("Opening task module")

	info := schema.TaskModuleTaskInfo{Title: d.Title, Width: d.Width, Height: d.Height}
	if d.Path == "" {
		att := InputCard().Attachment()
		info.Card = &att
	} else {
		info.URL = h.baseURL + d.Path
		info.FallbackURL = info.URL
	}
	resp := schema.TaskContinue(info)
	return &resp, nil
}

func (h *handler) onSubmit(ctx context.Context, c *bot.Context, req schema.TaskModuleRequest) (*schema.TaskModuleResponse, error) {
	msg := schema.NewMessage(SubmittedText)
	msg.Attachments = []schema.Attachment{SummaryCard(req.DataMap()).Attachment()}
	if _, err := c.SendActivity(ctx, msg); err != nil {
		return nil, err
	}
	resp := schema.TaskMessage(ThanksText)
	return &resp, nil
}

// lookup returns the dialog with id, defaulting to the adaptive card dialog.
func lookup(id string) Dialog {
	for _, d := range dialogs {
		if d.ID == id {
			return d
		}
	}
	return AdaptiveCardDialog
}

// HeroCard offers the dialogs as invoke buttons.
func HeroCard() schema.Attachment {
	card := schema.HeroCard{Title: "Task Module Invocation from Hero Card"}
	for _, d := range dialogs {
		card.Buttons = append(card.Buttons, schema.CardAction{
			Type:  schema.ActionInvoke,
			Title: d.ButtonTitle,
			Value: map[string]string{"type": schema.InvokeNameTaskFetch, "data": d.ID},
		})
	}
	return card.Attachment()
}

// OptionsCard offers the dialogs as adaptive card task fetch actions.
func OptionsCard() *adaptive.Card {
	actions := make([]adaptive.Action, 0, len(dialogs))
	for _, d := range dialogs {
		actions = append(actions, adaptive.TaskFetch(d.ButtonTitle, d.ID))
	}
	return adaptive.New(adaptive.Heading("Task Module Invocation from Adaptive Card")).
		WithVersion("1.4").
		WithActions(actions...)
}

// InputCard is shown inside the adaptive card dialog.
func InputCard() *adaptive.Card {
	input := adaptive.TextInput("usertext")
	input.Placeholder = "add some text and submit"
	input.IsMultiline = true

	title := adaptive.TextBlock("Enter Text Here")
	title.Weight = "Bolder"

	return adaptive.New(title, input).
		WithSchema().
		WithVersion("1.0").
		WithActions(adaptive.Submit("Submit", nil))
}

// SummaryCard lists the submitted fields in key order.
func SummaryCard(data map[string]any) *adaptive.Card {
	body := []adaptive.Element{adaptive.Heading("Task Module Submission Received")}
	if len(data) == 0 {
		none := adaptive.TextBlock("No data submitted")
		none.IsSubtle = true
		body = append(body, none)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body = append(body, adaptive.TextBlock(fmt.Sprintf("**%s:** %v", FieldLabel(k), data[k])))
	}
	return adaptive.New(body...).WithSchema()
}

// FieldLabel turns a submitted key into a label: underscores become spaces
// and each word is capitalized with the rest lower-cased.
func FieldLabel(key string) string {
	title := cases.Title(language.Und)
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = title.String(w)
	}
	return strings.Join(words, " ")
}
