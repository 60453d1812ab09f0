// Package bot routes inbound Teams activities to registered handlers and
// sends replies through the Bot Framework connector.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/auth"
	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/ratelimit"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
	"github.com/teamsbots/teamsbots/internal/tracing"
)

// maxBodySize bounds an inbound activity.
const maxBodySize = 4 << 20

// Replies sent by the router itself.
const (
	RateLimitedText = "You're sending messages too fast. Please slow down."
	ErrorText       = "The bot encountered an error or bug."
)

// Connector is the part of the Bot Framework REST API the app uses.
type Connector interface {
	SendToConversation(ctx context.Context, serviceURL, conversationID string, a *schema.Activity) (*connector.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, serviceURL, conversationID, activityID string, a *schema.Activity) (*connector.ResourceResponse, error)
	UpdateActivity(ctx context.Context, serviceURL, conversationID, activityID string, a *schema.Activity) (*connector.ResourceResponse, error)
	DeleteActivity(ctx context.Context, serviceURL, conversationID, activityID string) error
	GetConversationMember(ctx context.Context, serviceURL, conversationID, memberID string) (*schema.TeamsChannelAccount, error)
	GetConversationMembers(ctx context.Context, serviceURL, conversationID string) ([]schema.TeamsChannelAccount, error)
}

// Authenticator validates the Authorization header of an inbound activity.
type Authenticator interface {
	Validate(ctx context.Context, authHeader string) (*auth.Claims, error)
}

// Handler handles a message or conversation update.
type Handler func(ctx context.Context, c *Context) error

// MembersAddedHandler handles members joining a conversation.
type MembersAddedHandler func(ctx context.Context, c *Context, members []schema.TeamsChannelAccount) error

// InvokeHandler handles an invoke and returns the HTTP response for it.
type InvokeHandler func(ctx context.Context, c *Context) (*schema.InvokeResponse, error)

// FileConsentHandler handles the user's answer to a file consent card.
type FileConsentHandler func(ctx context.Context, c *Context, resp schema.FileConsentCardResponse) error

// CardActionHandler handles an adaptive card Action.Execute.
type CardActionHandler func(ctx context.Context, c *Context, value schema.AdaptiveCardInvokeValue) (*schema.AdaptiveCardInvokeResponse, error)

// TaskHandler handles a task module fetch or submit.
type TaskHandler func(ctx context.Context, c *Context, req schema.TaskModuleRequest) (*schema.TaskModuleResponse, error)

type messageRoute struct {
	pattern *regexp.Regexp
	handler Handler
}

// App dispatches activities for one bot.
type App struct {
	name      string
	connector Connector
	auth      Authenticator
	store     storage.ConversationStore
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	routes         []messageRoute
	onMessage      Handler
	onConversation Handler
	onMembersAdded MembersAddedHandler
	invokes        map[string]InvokeHandler
}

// Option configures an App.
type Option func(*App)

// WithAuthenticator validates inbound requests. Without one every request
// is accepted.
func WithAuthenticator(a Authenticator) Option {
	return func(app *App) { app.auth = a }
}

// WithReferenceStore stores the conversation reference of every activity
// whose sender has an AAD object id.
func WithReferenceStore(s storage.ConversationStore) Option {
	return func(app *App) { app.store = s }
}

// WithRateLimiter limits messages per sender.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(app *App) { app.limiter = l }
}

// WithMetrics records activity metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(app *App) { app.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(app *App) { app.logger = l }
}

// New creates an app named after its sample.
func New(name string, conn Connector, opts ...Option) *App {
	app := &App{
		name:      name,
		connector: conn,
		logger:    zerolog.Nop(),
		invokes:   make(map[string]InvokeHandler),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger = app.logger.With().Str("component", "bot").Str("sample", name).Logger()
	return app
}

// Name returns the sample name.
func (a *App) Name() string {
	return a.name
}

// Connector returns the connector used for replies.
func (a *App) Connector() Connector {
	return a.connector
}

// OnMessage sets the handler for messages no pattern matched.
func (a *App) OnMessage(h Handler) {
	a.onMessage = h
}

// OnMessagePattern routes messages whose text matches re. Patterns are tried
// in registration order and the first match wins.
func (a *App) OnMessagePattern(re *regexp.Regexp, h Handler) {
	a.routes = append(a.routes, messageRoute{pattern: re, handler: h})
}

// OnConversationUpdate sets the handler for every conversation update.
func (a *App) OnConversationUpdate(h Handler) {
	a.onConversation = h
}

// OnMembersAdded sets the handler for conversation updates adding members.
func (a *App) OnMembersAdded(h MembersAddedHandler) {
	a.onMembersAdded = h
}

// OnInvoke sets the handler for invokes called name.
func (a *App) OnInvoke(name string, h InvokeHandler) {
	a.invokes[name] = h
}

// OnFileConsent handles fileConsent/invoke.
func (a *App) OnFileConsent(h FileConsentHandler) {
	a.OnInvoke(schema.InvokeNameFileConsent, func(ctx context.Context, c *Context) (*schema.InvokeResponse, error) {
		var resp schema.FileConsentCardResponse
		if err := c.Activity.DecodeValue(&resp); err != nil {
			return &schema.InvokeResponse{Status: http.StatusBadRequest}, nil
		}
		if err := h(ctx, c, resp); err != nil {
			return nil, err
		}
		return &schema.InvokeResponse{Status: http.StatusOK}, nil
	})
}

// OnCardAction handles adaptiveCard/action.
func (a *App) OnCardAction(h CardActionHandler) {
	a.OnInvoke(schema.InvokeNameAdaptiveCardAction, func(ctx context.Context, c *Context) (*schema.InvokeResponse, error) {
		var value schema.AdaptiveCardInvokeValue
		if err := c.Activity.DecodeValue(&value); err != nil {
			return &schema.InvokeResponse{Status: http.StatusBadRequest}, nil
		}
		resp, err := h(ctx, c, value)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return &schema.InvokeResponse{Status: http.StatusOK}, nil
		}
		return schema.OK(resp), nil
	})
}

// OnTaskFetch handles task/fetch.
func (a *App) OnTaskFetch(h TaskHandler) {
	a.OnInvoke(schema.InvokeNameTaskFetch, taskInvoke(h))
}

// OnTaskSubmit handles task/submit.
func (a *App) OnTaskSubmit(h TaskHandler) {
	a.OnInvoke(schema.InvokeNameTaskSubmit, taskInvoke(h))
}

func taskInvoke(h TaskHandler) InvokeHandler {
	return func(ctx context.Context, c *Context) (*schema.InvokeResponse, error) {
		var req schema.TaskModuleRequest
		if len(c.Activity.Value) > 0 {
			if err := c.Activity.DecodeValue(&req); err != nil {
				return &schema.InvokeResponse{Status: http.StatusBadRequest}, nil
			}
		}
		resp, err := h(ctx, c, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return &schema.InvokeResponse{Status: http.StatusOK}, nil
		}
		return schema.OK(resp), nil
	}
}

// ServeHTTP handles POST /api/{sample}/messages.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.ExtractHTTP(r.Context(), r.Header)

	var claims *auth.Claims
	if a.auth != nil {
		var err error
		claims, err = a.auth.Validate(ctx, r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Warn().Err(err).Msg("Rejected activity")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var activity schema.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}
	if err := activity.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if claims != nil && claims.ServiceURL != "" && !sameServiceURL(claims.ServiceURL, activity.ServiceURL) {
		a.logger.Warn().Str("service_url", activity.ServiceURL).Msg("Rejected activity")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	resp := a.Process(ctx, &activity)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp.Body)
}

// Process dispatches a decoded activity. Invokes return the response to
// write back; other activities return nil.
func (a *App) Process(ctx context.Context, activity *schema.Activity) *schema.InvokeResponse {
	start := time.Now()

	ctx, span := tracing.StartActivitySpan(ctx, a.name, activity.Type, activity.Name, activity.Conversation.ID)
	defer span.End()

	c := &Context{
		Activity: activity,
		app:      a,
		logger: a.logger.With().
			Str("activity_type", activity.Type).
			Str("conversation_id", activity.Conversation.ID).
			Logger(),
	}

	a.saveReference(activity)

	var (
		resp *schema.InvokeResponse
		err  error
	)

	switch activity.Type {
	case schema.ActivityTypeMessage:
		if a.limiter != nil && !a.limiter.Allow(activity.From.ID) {
			a.metrics.RecordRateLimited(a.name)
			a.metrics.RecordActivity(a.name, activity.Type, "rate_limited", time.Since(start).Seconds())
			if _, err := c.Send(ctx, RateLimitedText); err != nil {
				c.logger.Error().Err(err).Msg("Failed to send rate limit reply")
			}
			return nil
		}
		err = a.handleMessage(ctx, c)
	case schema.ActivityTypeConversationUpdate:
		err = a.handleConversationUpdate(ctx, c)
	case schema.ActivityTypeInvoke:
		resp, err = a.handleInvoke(ctx, c)
	default:
		c.logger.Debug().Msg("Ignoring activity")
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		tracing.RecordError(span, err)
		c.logger.Error().Err(err).Str("name", activity.Name).Msg("Handler failed")

		if activity.Type == schema.ActivityTypeInvoke {
			resp = &schema.InvokeResponse{Status: http.StatusInternalServerError}
		} else if _, sendErr := c.Send(ctx, ErrorText); sendErr != nil {
			c.logger.Error().Err(sendErr).Msg("Failed to send error reply")
		}
	} else {
		tracing.SetSpanOK(span)
	}

	a.metrics.RecordActivity(a.name, activity.Type, outcome, time.Since(start).Seconds())

	if activity.Type == schema.ActivityTypeInvoke && resp == nil {
		resp = &schema.InvokeResponse{Status: http.StatusOK}
	}
	return resp
}

func (a *App) handleMessage(ctx context.Context, c *Context) error {
	text := c.Activity.TrimmedText()
	for _, route := range a.routes {
		if route.pattern.MatchString(text) {
			return route.handler(ctx, c)
		}
	}
	if a.onMessage != nil {
		return a.onMessage(ctx, c)
	}
	return nil
}

func (a *App) handleConversationUpdate(ctx context.Context, c *Context) error {
	if a.onMembersAdded != nil && len(c.Activity.MembersAdded) > 0 {
		if err := a.onMembersAdded(ctx, c, c.Activity.MembersAdded); err != nil {
			return err
		}
	}
	if a.onConversation != nil {
		return a.onConversation(ctx, c)
	}
	return nil
}

func (a *App) handleInvoke(ctx context.Context, c *Context) (*schema.InvokeResponse, error) {
	h, ok := a.invokes[c.Activity.Name]
	if !ok {
		c.logger.Debug().Str("name", c.Activity.Name).Msg("No handler for invoke")
		return &schema.InvokeResponse{Status: http.StatusNotImplemented}, nil
	}
	return h(ctx, c)
}

func (a *App) saveReference(activity *schema.Activity) {
	if a.store == nil {
		return
	}
	ref := activity.Reference()
	key := a.ReferenceKey(ref.Key())
	if key == "" {
		return
	}
	if err := a.store.SaveReference(key, ref); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("Failed to store conversation reference")
	}
}

// ReferenceKey returns the key this app stores a user's conversation
// reference under.
func (a *App) ReferenceKey(aadObjectID string) string {
	return schema.ReferenceKey(a.name, aadObjectID)
}

// Send delivers a proactive activity to the conversation in ref.
func (a *App) Send(ctx context.Context, ref schema.ConversationReference, activity *schema.Activity) (*connector.ResourceResponse, error) {
	if ref.ServiceURL == "" || ref.Conversation.ID == "" {
		return nil, fmt.Errorf("%w: incomplete conversation reference", schema.ErrInvalidActivity)
	}
	ref.Apply(activity)
	return a.connector.SendToConversation(ctx, ref.ServiceURL, ref.Conversation.ID, activity)
}

func sameServiceURL(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}
