// Package quickstart is the getting started bot: echo, mentions, member
// lookup and a delayed proactive reminder.
package quickstart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Name is the sample name used in routes and metrics.
const Name = "quickstart"

// Replies.
const (
	WelcomeText    = "Welcome to the Teams Quickstart Bot!"
	NoUserIDText   = "Sorry, I couldn't identify your user ID for proactive messaging."
	ackTemplate    = "Got it! I'll send you a proactive message in %d seconds..."
	remindTemplate = "Reminder: This proactive message was sent %d seconds after your request!"
)

// Scheduler sends a proactive message later.
type Scheduler interface {
	NotifyAfter(userKey string, delay time.Duration, text string) error
}

// Options configures the sample.
type Options struct {
	// Proactive schedules reminders. Without it the proactive command is
	// treated as text.
	Proactive Scheduler
	// Delay before the reminder is sent.
	Delay time.Duration
}

type handler struct {
	proactive Scheduler
	delay     time.Duration
}

// Register installs the sample handlers on app.
func Register(app *bot.App, opts Options) {
	if opts.Delay <= 0 {
		opts.Delay = 10 * time.Second
	}
	h := &handler{proactive: opts.Proactive, delay: opts.Delay}

	app.OnMessage(h.onMessage)
	app.OnMembersAdded(h.onMembersAdded)
}

func (h *handler) onMembersAdded(ctx context.Context, c *bot.Context, members []schema.TeamsChannelAccount) error {
	for _, m := range members {
		if m.ID == c.Activity.Recipient.ID {
			_, err := c.Send(ctx, WelcomeText)
			return err
		}
	}
	return nil
}

func (h *handler) onMessage(ctx context.Context, c *bot.Context) error {
	text := strings.ToLower(schema.StripAtTags(c.Activity.Text))

	switch {
	case h.proactive != nil && (strings.Contains(text, "proactive") || strings.Contains(text, "remind")):
		return h.scheduleReminder(ctx, c)
	case strings.Contains(text, "mentionme") || strings.Contains(text, "mention me"):
		return mentionUser(ctx, c)
	case strings.Contains(text, "whoami"):
		_, err := c.Send(ctx, "You are: "+c.Sender(ctx).Name)
		return err
	case strings.Contains(text, "welcome"):
		_, err := c.Send(ctx, WelcomeText)
		return err
	case text != "":
		_, err := c.Send(ctx, "**Echo:** "+text)
		return err
	}
	return nil
}

func (h *handler) scheduleReminder(ctx context.Context, c *bot.Context) error {
	key := c.App().ReferenceKey(c.Activity.From.AADObjectID)
	if key == "" {
		_, err := c.Send(ctx, NoUserIDText)
		return err
	}

	secs := int(h.delay / time.Second)
	if _, err := c.Send(ctx, fmt.Sprintf(ackTemplate, secs)); err != nil {
		return err
	}
	return h.proactive.NotifyAfter(key, h.delay, fmt.Sprintf(remindTemplate, secs))
}

func mentionUser(ctx context.Context, c *bot.Context) error {
	member := c.Sender(ctx)
	account := schema.ChannelAccount{ID: c.Activity.From.ID, Name: member.Name, Role: "user"}
	if account.Name == "" {
		account.Name = "User"
	}

	reply := schema.NewMessage("")
	reply.Text = "Hello " + reply.AddMention(account)
	_, err := c.SendActivity(ctx, reply)
	return err
}
