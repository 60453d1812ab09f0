// Package proactive sends bot initiated messages to conversations whose
// reference was stored from an earlier activity.
package proactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/connector"
	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
	"github.com/teamsbots/teamsbots/internal/tracing"
)

// DefaultDelay is the delay used by NotifyAfter when none is given.
const DefaultDelay = 10 * time.Second

// Errors returned by the Notifier.
var (
	ErrClosed   = errors.New("notifier closed")
	ErrNoSender = errors.New("no sender for conversation")
)

// Sender delivers an activity to a stored conversation.
type Sender interface {
	Send(ctx context.Context, ref schema.ConversationReference, activity *schema.Activity) (*connector.ResourceResponse, error)
}

// BroadcastResult summarises a broadcast.
type BroadcastResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Notifier sends proactive messages.
type Notifier struct {
	store   storage.ConversationStore
	sender  Sender
	senders map[string]Sender
	metrics *metrics.Metrics
	logger  zerolog.Logger
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMetrics records proactive sends.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithSender routes references stored by bot through s. A reference keyed
// for a bot with no registered sender is not sent.
func WithSender(bot string, s Sender) Option {
	return func(n *Notifier) { n.senders[bot] = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a Notifier reading references from store. sender delivers
// references stored under unscoped keys.
func New(store storage.ConversationStore, sender Sender, opts ...Option) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		store:   store,
		sender:  sender,
		senders: make(map[string]Sender),
		logger:  zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With().Str("component", "proactive").Logger()

	cl := cronLogger{n.logger}
	n.cron = cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return n
}

// Notify sends text to the conversation stored under userKey. It returns
// false when no reference is stored for the key.
func (n *Notifier) Notify(ctx context.Context, userKey, text string) (bool, error) {
	ctx, span := tracing.StartProactiveSpan(ctx, userKey)
	defer span.End()

	stored, err := n.store.GetReference(userKey)
	if errors.Is(err, storage.ErrNotFound) {
		n.metrics.RecordProactive("no_reference")
		return false, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return false, fmt.Errorf("failed to load conversation reference: %w", err)
	}

	if _, err := n.send(ctx, stored, text); err != nil {
		n.metrics.RecordProactive("error")
		tracing.RecordError(span, err)
		return true, fmt.Errorf("failed to send proactive message: %w", err)
	}

	n.metrics.RecordProactive("sent")
	tracing.SetSpanOK(span)
	return true, nil
}

// NotifyAfter sends text to userKey after delay in the background. Pending
// messages are dropped by Close.
func (n *Notifier) NotifyAfter(userKey string, delay time.Duration, text string) error {
	if delay <= 0 {
		delay = DefaultDelay
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-n.ctx.Done():
			n.logger.Debug().Str("user_key", userKey).Msg("Dropped pending proactive message")
			return
		case <-timer.C:
		}

		ok, err := n.Notify(n.ctx, userKey, text)
		switch {
		case err != nil:
			n.logger.Error().Err(err).Str("user_key", userKey).Msg("Proactive message failed")
		case !ok:
			n.logger.Warn().Str("user_key", userKey).Msg("No conversation reference for proactive message")
		default:
			n.logger.Info().Str("user_key", userKey).Msg("Proactive message sent")
		}
	}()
	return nil
}

// Broadcast sends text to every stored conversation.
func (n *Notifier) Broadcast(ctx context.Context, text string) (*BroadcastResult, error) {
	refs, err := n.store.ListReferences()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation references: %w", err)
	}
	n.metrics.SetStoredReferences(len(refs))

	result := &BroadcastResult{}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if _, err := n.send(ctx, &ref, text); err != nil {
			n.metrics.RecordProactive("error")
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ref.Key, err))
			continue
		}
		n.metrics.RecordProactive("sent")
		result.Sent++
	}
	return result, nil
}

func (n *Notifier) send(ctx context.Context, stored *storage.StoredReference, text string) (*connector.ResourceResponse, error) {
	bot, _ := schema.SplitReferenceKey(stored.Key)
	sender := n.sender
	if bot != "" {
		sender = n.senders[bot]
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSender, stored.Key)
	}
	return sender.Send(ctx, stored.Reference, schema.NewMessage(text))
}

// Schedule broadcasts text on a cron spec, five fields or a descriptor
// such as @daily.
func (n *Notifier) Schedule(spec, text string) (cron.EntryID, error) {
	return n.cron.AddFunc(spec, func() {
		result, err := n.Broadcast(n.ctx, text)
		if err != nil {
			n.logger.Error().Err(err).Str("schedule", spec).Msg("Scheduled broadcast failed")
			return
		}
		n.logger.Info().
			Str("schedule", spec).
			Int("sent", result.Sent).
			Int("failed", result.Failed).
			Msg("Scheduled broadcast sent")
	})
}

// Start starts scheduled broadcasts.
func (n *Notifier) Start() {
	n.cron.Start()
}

// Close stops scheduled broadcasts, cancels pending delayed messages and
// waits for running ones.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	<-n.cron.Stop().Done()
	n.cancel()
	n.wg.Wait()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
