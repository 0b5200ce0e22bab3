package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

// DefaultClaimTTL bounds how long a processed update id blocks
// redeliveries of the same update.
const DefaultClaimTTL = 10 * time.Minute

// Handler consumes one classified event.
type Handler interface {
	Handle(ctx context.Context, event core.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event core.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event core.Event) error {
	return f(ctx, event)
}

// Dispatcher is the single entry point for webhook deliveries: it
// classifies the update, claims its update id so a redelivered webhook
// cannot run twice, and hands the event to the handler. Handler failures
// release the claim for a retry; unclassifiable updates and duplicates
// succeed silently.
type Dispatcher struct {
	Router  Router
	Store   core.IdempotencyClaimStore
	Handler Handler
	KeyTTL  time.Duration
	Logger  core.Logger
}

// NewDispatcher wires a dispatcher over handler with store-backed dedupe.
func NewDispatcher(store core.IdempotencyClaimStore, handler Handler) *Dispatcher {
	return &Dispatcher{
		Store:   store,
		Handler: handler,
		KeyTTL:  DefaultClaimTTL,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, update Update) error {
	if d == nil || d.Handler == nil {
		return core.ConfigMissingError{Field: "inbound.handler"}
	}

	event, ok := d.Router.Classify(update)
	if !ok {
		d.logDebug(ctx, "update ignored, no recognizable action",
			"update_id", update.UpdateID, "conversation_id", update.ConversationID)
		return nil
	}

	claimID := ""
	if d.Store != nil {
		var accepted bool
		var err error
		claimID, accepted, err = d.Store.Claim(ctx, updateClaimKey(update.UpdateID), d.claimTTL())
		if err != nil {
			return fmt.Errorf("inbound: claim update %d: %w", update.UpdateID, err)
		}
		if !accepted {
			d.logDebug(ctx, "duplicate update delivery dropped",
				"update_id", update.UpdateID, "conversation_id", update.ConversationID)
			return nil
		}
	}

	if err := d.Handler.Handle(ctx, event); err != nil {
		if d.Store != nil && claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err, time.Time{}); failErr != nil {
				d.logWarn(ctx, "failed to release update claim",
					"update_id", update.UpdateID, "claim_id", claimID, "error", failErr)
			}
		}
		return err
	}

	if d.Store != nil && claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			return fmt.Errorf("inbound: complete claim for update %d: %w", update.UpdateID, err)
		}
	}
	return nil
}

func (d *Dispatcher) claimTTL() time.Duration {
	if d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return DefaultClaimTTL
}

func (d *Dispatcher) logDebug(ctx context.Context, message string, args ...any) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithContext(ctx).Debug(message, args...)
}

func (d *Dispatcher) logWarn(ctx context.Context, message string, args ...any) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithContext(ctx).Warn(message, args...)
}

func updateClaimKey(updateID int64) string {
	return fmt.Sprintf("update:%d", updateID)
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	key            string
	status         claimStatus
	claimID        string
	attempts       int
	ttl            time.Duration
	leaseExpiresAt time.Time
	retryAt        time.Time
}

// InMemoryClaimStore is the single-process claim store used by default
// and in tests; the SQL-backed store replaces it when deliveries must
// survive restarts. A completed key keeps rejecting claims until its
// lease lapses, a failed key reopens at its retry time, and an expired
// processing lease is treated as a crashed worker and reclaimed.
type InMemoryClaimStore struct {
	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryClaimStore) Claim(_ context.Context, key string, lease time.Duration) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, core.BadInputError{Reason: "claim key is empty"}
	}
	now := s.now()
	if lease <= 0 {
		lease = DefaultClaimTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	entry, exists := s.entries[key]
	if !exists {
		claimID := s.nextClaimID()
		s.entries[key] = claimEntry{
			key:            key,
			status:         claimStatusProcessing,
			claimID:        claimID,
			attempts:       1,
			ttl:            lease,
			leaseExpiresAt: now.Add(lease),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch entry.status {
	case claimStatusComplete:
		if !entry.leaseExpiresAt.IsZero() && now.Before(entry.leaseExpiresAt) {
			return "", false, nil
		}
	case claimStatusProcessing:
		if now.Before(entry.leaseExpiresAt) {
			return "", false, nil
		}
	case claimStatusRetryReady:
		if !entry.retryAt.IsZero() && now.Before(entry.retryAt) {
			return "", false, nil
		}
	}

	if entry.claimID != "" {
		delete(s.claims, entry.claimID)
	}
	claimID := s.nextClaimID()
	entry.status = claimStatusProcessing
	entry.claimID = claimID
	entry.attempts++
	entry.ttl = lease
	entry.leaseExpiresAt = now.Add(lease)
	entry.retryAt = time.Time{}
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(_ context.Context, claimID string) error {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.BadInputError{Reason: "claim id is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	entry, exists := s.entries[key]
	if !exists || entry.claimID != claimID || entry.status != claimStatusProcessing {
		delete(s.claims, claimID)
		return nil
	}
	ttl := entry.ttl
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	entry.status = claimStatusComplete
	entry.leaseExpiresAt = s.now().Add(ttl)
	entry.retryAt = time.Time{}
	s.entries[key] = entry
	delete(s.claims, claimID)
	return nil
}

func (s *InMemoryClaimStore) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.BadInputError{Reason: "claim id is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	entry, exists := s.entries[key]
	if !exists || entry.claimID != claimID || entry.status != claimStatusProcessing {
		delete(s.claims, claimID)
		return nil
	}
	if retryAt.IsZero() {
		retryAt = s.now()
	}
	entry.status = claimStatusRetryReady
	entry.retryAt = retryAt.UTC()
	entry.leaseExpiresAt = time.Time{}
	s.entries[key] = entry
	delete(s.claims, claimID)
	return nil
}

func (s *InMemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.status != claimStatusComplete {
			continue
		}
		if entry.leaseExpiresAt.IsZero() || !now.Before(entry.leaseExpiresAt) {
			if entry.claimID != "" {
				delete(s.claims, entry.claimID)
			}
			delete(s.entries, key)
		}
	}
}

var _ core.IdempotencyClaimStore = (*InMemoryClaimStore)(nil)
