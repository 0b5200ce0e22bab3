package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

// DefaultMinInterval is the minimum spacing between sequential sends to
// the same conversation.
const DefaultMinInterval = 700 * time.Millisecond

// Config holds the channel collaborators and knobs.
type Config struct {
	Transport   core.Transport
	MinInterval time.Duration
	Logger      core.Logger

	// Now and Sleep exist for tests; nil uses the real clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Channel delivers outbound payloads through the transport with two
// guarantees: sequential sends to one conversation are spaced at least
// MinInterval apart, and a throttle signal is retried exactly once after
// its advertised wait. A second throttle on the same payload gives up
// with a delivery failure rather than looping.
type Channel struct {
	transport   core.Transport
	minInterval time.Duration
	logger      core.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastSend map[int64]time.Time
}

// NewChannel builds a Channel from cfg, applying defaults.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("delivery: transport is required")
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Channel{
		transport:   cfg.Transport,
		minInterval: minInterval,
		logger:      cfg.Logger,
		now:         now,
		sleep:       sleep,
		lastSend:    map[int64]time.Time{},
	}, nil
}

// Send delivers payload to the conversation, pacing against the previous
// send and absorbing at most one throttle round trip.
func (c *Channel) Send(ctx context.Context, conversationID int64, payload core.Payload) error {
	if err := c.pace(ctx, conversationID); err != nil {
		return err
	}

	err := c.dispatch(ctx, conversationID, payload)
	if err == nil {
		c.markSent(conversationID)
		return nil
	}

	retryAfter, throttled := core.IsThrottled(err)
	if !throttled {
		return err
	}

	c.logDebug(ctx, "send throttled, retrying once",
		"conversation_id", conversationID, "retry_after", retryAfter.String())
	if err := c.sleep(ctx, retryAfter); err != nil {
		return err
	}

	err = c.dispatch(ctx, conversationID, payload)
	if err == nil {
		c.markSent(conversationID)
		return nil
	}
	if _, throttled := core.IsThrottled(err); throttled {
		return core.DeliveryFailedError{ConversationID: conversationID, Attempts: 2, Cause: err}
	}
	return err
}

func (c *Channel) dispatch(ctx context.Context, conversationID int64, payload core.Payload) error {
	if payload.ImageURL != "" {
		return c.transport.SendPhoto(ctx, conversationID, payload)
	}
	return c.transport.SendText(ctx, conversationID, payload)
}

// pace blocks until at least minInterval has passed since the previous
// send to this conversation. Different conversations never wait on each
// other.
func (c *Channel) pace(ctx context.Context, conversationID int64) error {
	c.mu.Lock()
	last, seen := c.lastSend[conversationID]
	c.mu.Unlock()
	if !seen {
		return nil
	}

	elapsed := c.now().Sub(last)
	if elapsed >= c.minInterval {
		return nil
	}
	return c.sleep(ctx, c.minInterval-elapsed)
}

func (c *Channel) markSent(conversationID int64) {
	c.mu.Lock()
	c.lastSend[conversationID] = c.now()
	c.mu.Unlock()
}

func (c *Channel) logDebug(ctx context.Context, message string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.WithContext(ctx).Debug(message, args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.DeliveryChannel = (*Channel)(nil)
