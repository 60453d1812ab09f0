// Package cards demonstrates Adaptive Card actions: open URL, nested show
// card, Action.Execute and toggle visibility.
package cards

import (
	"context"
	"fmt"
	"regexp"

	"github.com/teamsbots/teamsbots/internal/bot"
	adaptive "github.com/teamsbots/teamsbots/internal/cards"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Name is the sample name used in routes and metrics.
const Name = "cards"

// Replies.
const (
	HelpText            = "Welcome to the Cards Bot! To interact with me, send one of the following commands: 'card actions' or 'toggle visibility'"
	ActionProcessedText = "Action processed successfully"
)

// Register installs the sample handlers on app.
func Register(app *bot.App) {
	app.OnMessagePattern(regexp.MustCompile(`(?i)card actions`), sendCard(CardActions))
	app.OnMessagePattern(regexp.MustCompile(`(?i)toggle visibility`), sendCard(ToggleVisibility))
	app.OnCardAction(onCardAction)
	app.OnMessage(func(ctx context.Context, c *bot.Context) error {
		_, err := c.Send(ctx, HelpText)
		return err
	})
}

func sendCard(build func() *adaptive.Card) bot.Handler {
	return func(ctx context.Context, c *bot.Context) error {
		msg := schema.NewMessage("")
		msg.Attachments = []schema.Attachment{build().Attachment()}
		_, err := c.SendActivity(ctx, msg)
		return err
	}
}

func onCardAction(ctx context.Context, c *bot.Context, v schema.AdaptiveCardInvokeValue) (*schema.AdaptiveCardInvokeResponse, error) {
	name := ""
	if n, ok := v.Action.Data["name"]; ok {
		name = fmt.Sprint(n)
	}
	if _, err := c.Send(ctx, "Data Submitted: "+name); err != nil {
		return nil, err
	}
	resp := schema.ActionMessage(ActionProcessedText)
	return &resp, nil
}

// CardActions builds the card showing each action type.
func CardActions() *adaptive.Card {
	inner := adaptive.New(
		adaptive.TextBlock("**Welcome To Your New Card**"),
		adaptive.TextBlock("This is your new card inside another card"),
	)

	middle := adaptive.New(adaptive.TextBlock("This card's action will show another card")).
		WithActions(adaptive.ShowCard("Action.ShowCard", inner))

	nameInput := adaptive.TextInput("name")
	nameInput.Label = "Please enter your name:"
	nameInput.IsRequired = true
	nameInput.ErrorMessage = "Name is required"

	submit := adaptive.Execute("Submit", "", map[string]string{"action": "submit_name"})
	submit.AssociatedInputs = "auto"
	form := adaptive.New(nameInput).WithActions(submit)

	return adaptive.New(adaptive.TextBlock("Adaptive Card Actions")).WithActions(
		adaptive.OpenURL("Action Open URL", "https://adaptivecards.io"),
		adaptive.ShowCard("Action Submit", form),
		adaptive.ShowCard("Action ShowCard", middle),
	)
}

// ToggleVisibility builds the card with a hidden message.
func ToggleVisibility() *adaptive.Card {
	hello := adaptive.TextBlock("**Hello World!**").Hidden()
	hello.ID = "helloWorld"
	hello.Size = "ExtraLarge"

	return adaptive.New(
		adaptive.TextBlock("Click to show or hide the message"),
		hello,
	).WithActions(adaptive.ToggleVisibility("Click me!", "helloWorld"))
}
