// Package conversation demonstrates conversation APIs: member lookup,
// mentions in adaptive cards, and updating and deleting sent cards.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/cards"
	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Name is the sample name used in routes and metrics.
const Name = "conversation"

// Replies.
const (
	MemberNotFoundText = "Member not found."
	NoCardText         = "No card to delete."
)

// ProfileEnricher fills missing profile fields of a member.
type ProfileEnricher interface {
	Enrich(ctx context.Context, account *schema.TeamsChannelAccount)
}

// Options configures the sample.
type Options struct {
	// Profiles, when set, completes member names and UPNs.
	Profiles ProfileEnricher
}

type handler struct {
	profiles        ProfileEnricher
	mentionTemplate *cards.Template
	readerTemplate  *cards.Template
}

// Register installs the sample handlers on app.
func Register(app *bot.App, opts Options) {
	h := &handler{
		profiles:        opts.Profiles,
		mentionTemplate: cards.MustLoadTemplate(cards.UserMentionTemplate),
		readerTemplate:  cards.MustLoadTemplate(cards.ImmersiveReaderTemplate),
	}

	app.OnMessage(h.onMessage)
	app.OnMembersAdded(h.onMembersAdded)
}

func (h *handler) onMessage(ctx context.Context, c *bot.Context) error {
	if err := c.SendTyping(ctx); err != nil {
		c.Logger().Debug().Err(err).Msg("Failed to send typing indicator")
	}

	text := strings.ToLower(schema.StripAtTags(c.Activity.Text))

	switch {
	case strings.Contains(text, "mention me"):
		return h.mentionCard(ctx, c)
	case strings.Contains(text, "update"):
		return sendUpdateCard(ctx, c)
	case strings.Contains(text, "who"):
		return h.whoAmI(ctx, c)
	case strings.Contains(text, "immersivereader"):
		_, err := c.SendActivity(ctx, attachmentMessage(h.readerTemplate.Attachment(nil)))
		return err
	case strings.Contains(text, "delete"):
		return deleteCard(ctx, c)
	default:
		_, err := c.SendActivity(ctx, attachmentMessage(heroCard("Welcome Card", "Click the buttons.", 0)))
		return err
	}
}

func (h *handler) onMembersAdded(ctx context.Context, c *bot.Context, members []schema.TeamsChannelAccount) error {
	if c.Activity.IsPersonal() {
		return nil
	}
	for _, m := range members {
		if m.ID == c.Activity.Recipient.ID {
			continue
		}
		if _, err := c.Send(ctx, "Welcome to the team "+welcomeName(m)); err != nil {
			return err
		}
	}
	return nil
}

// member fetches the sender. found is false when Teams reports the sender is
// not in the conversation; other lookup failures fall back to the From
// account.
func (h *handler) member(ctx context.Context, c *bot.Context) (schema.TeamsChannelAccount, bool) {
	m, err := c.Member(ctx, c.Activity.From.ID)
	if connector.IsMemberNotFound(err) {
		return schema.TeamsChannelAccount{}, false
	}

	account := schema.TeamsChannelAccount{ChannelAccount: c.Activity.From}
	if err == nil {
		account = *m
	} else {
		c.Logger().Debug().Err(err).Msg("Member lookup failed, using sender account")
	}
	if h.profiles != nil {
		h.profiles.Enrich(ctx, &account)
	}
	return account, true
}

func (h *handler) mentionCard(ctx context.Context, c *bot.Context) error {
	m, ok := h.member(ctx, c)
	if !ok {
		_, err := c.Send(ctx, MemberNotFoundText)
		return err
	}

	name := m.Name
	if name == "" {
		name = "User"
	}
	upn := m.UserPrincipalName
	if upn == "" {
		upn = m.ID
	}
	aad := m.AADObjectID
	if aad == "" {
		aad = m.ID
	}

	card := h.mentionTemplate.Attachment(map[string]string{
		"userName": name,
		"userUPN":  upn,
		"userAAD":  aad,
	})
	_, err := c.SendActivity(ctx, attachmentMessage(card))
	return err
}

func (h *handler) whoAmI(ctx context.Context, c *bot.Context) error {
	m, ok := h.member(ctx, c)
	if !ok {
		_, err := c.Send(ctx, MemberNotFoundText)
		return err
	}
	_, err := c.Send(ctx, "You are: "+m.Name)
	return err
}

func sendUpdateCard(ctx context.Context, c *bot.Context) error {
	count := updateCount(c.Activity.Value) + 1
	msg := attachmentMessage(heroCard("Updated card", fmt.Sprintf("Update count %d", count), count))

	if id := c.Activity.ReplyToID; id != "" {
		_, err := c.Update(ctx, id, msg)
		return err
	}
	_, err := c.SendActivity(ctx, msg)
	return err
}

func deleteCard(ctx context.Context, c *bot.Context) error {
	id := c.Activity.ReplyToID
	if id == "" {
		_, err := c.Send(ctx, NoCardText)
		return err
	}
	if err := c.Delete(ctx, id); err != nil {
		_, sendErr := c.Send(ctx, "Could not delete the card: "+err.Error())
		return sendErr
	}
	return nil
}

type updateValue struct {
	Count int `json:"count"`
}

// updateCount reads the count carried by the Update Card button. The value
// may be an object or a JSON encoded string.
func updateCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var v updateValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v.Count
}

func heroCard(title, text string, count int) schema.Attachment {
	return schema.HeroCard{
		Title: title,
		Text:  text,
		Buttons: []schema.CardAction{
			{Type: schema.ActionMessageBack, Title: "Who am I?", Text: "whoami"},
			{Type: schema.ActionMessageBack, Title: "Find me in Adaptive Card", Text: "mention me"},
			{Type: schema.ActionMessageBack, Title: "Delete card", Text: "deletecard"},
			{Type: schema.ActionMessageBack, Title: "Send Immersive Reader Card", Text: "immersivereader"},
			{Type: schema.ActionMessageBack, Title: "Update Card", Text: "updatecardaction", Value: updateValue{Count: count}},
		},
	}.Attachment()
}

func attachmentMessage(a schema.Attachment) *schema.Activity {
	msg := schema.NewMessage("")
	msg.Attachments = []schema.Attachment{a}
	return msg
}

func welcomeName(m schema.TeamsChannelAccount) string {
	if name := strings.TrimSpace(m.GivenName + " " + m.Surname); name != "" {
		return name
	}
	if m.Name != "" {
		return m.Name
	}
	return "User"
}
