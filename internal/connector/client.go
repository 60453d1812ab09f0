// Package connector is a client for the Bot Framework connector REST API
// used to send, update and delete activities and to read conversation
// members.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/auth"
	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/tracing"
)

// Error codes returned by the connector service.
const (
	CodeMemberNotFound = "MemberNotFoundInConversation"
)

// ErrEmptyID is returned when a required path segment is empty.
var ErrEmptyID = errors.New("empty id")

// Error is a non 2xx response from the connector service.
type Error struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("connector %s: %d %s: %s", e.Operation, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("connector %s: status %d", e.Operation, e.StatusCode)
}

// IsMemberNotFound reports whether err says the member is not in the
// conversation.
func IsMemberNotFound(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == CodeMemberNotFound || strings.Contains(ce.Message, CodeMemberNotFound)
}

// IsNotFound reports whether err is a 404 from the connector service.
func IsNotFound(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.StatusCode == http.StatusNotFound
}

// ResourceResponse is returned by send and update calls.
type ResourceResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the connector service.
type Client struct {
	httpClient *http.Client
	tokens     auth.TokenProvider
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMetrics records outbound calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l.With().Str("component", "connector").Logger() }
}

// New creates a Client that authenticates with tokens.
func New(tokens auth.TokenProvider, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendToConversation posts a new activity to a conversation.
func (c *Client) SendToConversation(ctx context.Context, serviceURL, conversationID string, a *schema.Activity) (*ResourceResponse, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("send: conversation %w", ErrEmptyID)
	}
	var out ResourceResponse
	err := c.do(ctx, "send", http.MethodPost, activitiesURL(serviceURL, conversationID, ""), a, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplyToActivity posts an activity as a reply to activityID.
func (c *Client) ReplyToActivity(ctx context.Context, serviceURL, conversationID, activityID string, a *schema.Activity) (*ResourceResponse, error) {
	if conversationID == "" || activityID == "" {
		return nil, fmt.Errorf("reply: %w", ErrEmptyID)
	}
	var out ResourceResponse
	err := c.do(ctx, "reply", http.MethodPost, activitiesURL(serviceURL, conversationID, activityID), a, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateActivity replaces an existing activity.
func (c *Client) UpdateActivity(ctx context.Context, serviceURL, conversationID, activityID string, a *schema.Activity) (*ResourceResponse, error) {
	if conversationID == "" || activityID == "" {
		return nil, fmt.Errorf("update: %w", ErrEmptyID)
	}
	a.ID = activityID
	var out ResourceResponse
	err := c.do(ctx, "update", http.MethodPut, activitiesURL(serviceURL, conversationID, activityID), a, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteActivity deletes an activity.
func (c *Client) DeleteActivity(ctx context.Context, serviceURL, conversationID, activityID string) error {
	if conversationID == "" || activityID == "" {
		return fmt.Errorf("delete: %w", ErrEmptyID)
	}
	return c.do(ctx, "delete", http.MethodDelete, activitiesURL(serviceURL, conversationID, activityID), nil, nil)
}

// GetConversationMember returns one member of a conversation.
func (c *Client) GetConversationMember(ctx context.Context, serviceURL, conversationID, memberID string) (*schema.TeamsChannelAccount, error) {
	if conversationID == "" || memberID == "" {
		return nil, fmt.Errorf("get member: %w", ErrEmptyID)
	}
	var out schema.TeamsChannelAccount
	err := c.do(ctx, "get_member", http.MethodGet, membersURL(serviceURL, conversationID, memberID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversationMembers returns every member of a conversation.
func (c *Client) GetConversationMembers(ctx context.Context, serviceURL, conversationID string) ([]schema.TeamsChannelAccount, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("get members: conversation %w", ErrEmptyID)
	}
	var out []schema.TeamsChannelAccount
	err := c.do(ctx, "get_members", http.MethodGet, membersURL(serviceURL, conversationID, ""), nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	ctx, span := tracing.StartConnectorSpan(ctx, op, method, target)
	defer span.End()

	status, err := c.roundTrip(ctx, op, method, target, body, out)
	c.metrics.RecordConnectorCall(op, status)
	if err != nil {
		tracing.RecordError(span, err)
		c.logger.Debug().Err(err).Str("operation", op).Str("url", target).Msg("Connector call failed")
		return err
	}
	tracing.SetSpanOK(span)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, target string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("connector %s: encode: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, fmt.Errorf("connector %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTP(ctx, req.Header)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("connector %s: %w", op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connector %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("connector %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ce := &Error{Operation: op, StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil {
			ce.Code = er.Error.Code
			ce.Message = er.Error.Message
		}
		if ce.Message == "" {
			ce.Message = strings.TrimSpace(string(respBody))
		}
		return resp.StatusCode, ce
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("connector %s: decode: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func activitiesURL(serviceURL, conversationID, activityID string) string {
	u := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if activityID != "" {
		u += "/" + url.PathEscape(activityID)
	}
	return u
}

func membersURL(serviceURL, conversationID, memberID string) string {
	u := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/members"
	if memberID != "" {
		u += "/" + url.PathEscape(memberID)
	}
	return u
}
