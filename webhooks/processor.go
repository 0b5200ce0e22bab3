package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/inbound"
	"github.com/goliatone/go-commercebot/telegram"
)

// SourceTelegram tags ledger rows written for Bot API deliveries.
const SourceTelegram = "telegram"

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// DeliveryRecord is one webhook delivery as the ledger tracks it.
type DeliveryRecord struct {
	ID            string
	ClaimID       string
	Source        string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger records which deliveries have been seen so redelivered
// webhooks dedupe across restarts. Claim returns claimed=false when the
// delivery is already processed or being processed.
type DeliveryLedger interface {
	Claim(ctx context.Context, source, deliveryID string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, source, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

// RetryPolicy spaces redelivery attempts after handler failures.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// UpdateDispatcher consumes one normalized update.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update inbound.Update) error
}

// Processor takes a raw webhook body through decode, ledger claim, and
// dispatch. The update id doubles as the delivery id for dedupe.
// Envelope shapes the relay does not handle are dropped after decode
// without touching the ledger.
type Processor struct {
	Ledger      DeliveryLedger
	Dispatcher  UpdateDispatcher
	RetryPolicy RetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Logger      core.Logger
	Now         func() time.Time
}

// NewProcessor wires a processor over ledger and dispatcher with the
// default retry policy.
func NewProcessor(ledger DeliveryLedger, dispatcher UpdateDispatcher) *Processor {
	return &Processor{
		Ledger:      ledger,
		Dispatcher:  dispatcher,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process handles one webhook body. A nil return means the transport
// should see a 200; handler failures are returned so the caller can log
// them, but the delivery is already marked for retry in the ledger.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	if p == nil || p.Dispatcher == nil {
		return fmt.Errorf("webhooks: processor requires a dispatcher")
	}

	envelope, err := telegram.DecodeUpdate(body)
	if err != nil {
		return err
	}
	update, ok := envelope.Normalize()
	if !ok {
		p.logDebug(ctx, "webhook delivery dropped, unhandled envelope shape",
			"update_id", envelope.UpdateID)
		return nil
	}

	if p.Ledger == nil {
		return p.Dispatcher.Dispatch(ctx, update)
	}

	deliveryID := strconv.FormatInt(update.UpdateID, 10)
	delivery, claimed, err := p.Ledger.Claim(ctx, SourceTelegram, deliveryID, body, p.claimLease())
	if err != nil {
		return err
	}
	if !claimed {
		p.logDebug(ctx, "webhook delivery deduped",
			"delivery_id", deliveryID, "status", delivery.Status)
		return nil
	}

	if err := p.Dispatcher.Dispatch(ctx, update); err != nil {
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
		if failErr := p.Ledger.Fail(ctx, delivery.ClaimID, err, nextAttemptAt, p.maxAttempts()); failErr != nil {
			p.logWarn(ctx, "failed to mark delivery for retry",
				"delivery_id", deliveryID, "error", failErr)
		}
		return err
	}

	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return err
	}
	return nil
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func (p *Processor) logDebug(ctx context.Context, message string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithContext(ctx).Debug(message, args...)
}

func (p *Processor) logWarn(ctx context.Context, message string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithContext(ctx).Warn(message, args...)
}

type ledgerEntry struct {
	record  DeliveryRecord
	payload []byte
	lease   time.Duration
}

// InMemoryDeliveryLedger backs single-process deployments and tests; the
// SQL ledger replaces it when dedupe must survive restarts.
type InMemoryDeliveryLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryDeliveryLedger() *InMemoryDeliveryLedger {
	return &InMemoryDeliveryLedger{
		entries: map[string]*ledgerEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func ledgerKey(source, deliveryID string) string {
	return source + ":" + deliveryID
}

func (l *InMemoryDeliveryLedger) Claim(
	_ context.Context,
	source, deliveryID string,
	payload []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if source == "" || deliveryID == "" {
		return DeliveryRecord{}, false, core.BadInputError{Reason: "delivery source and id are required"}
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(source, deliveryID)
	entry, exists := l.entries[key]
	if !exists {
		l.nextID++
		claimID := fmt.Sprintf("delivery_claim_%d", l.nextID)
		record := DeliveryRecord{
			ID:         fmt.Sprintf("delivery_%d", l.nextID),
			ClaimID:    claimID,
			Source:     source,
			DeliveryID: deliveryID,
			Status:     DeliveryStatusProcessing,
			Attempts:   1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		l.entries[key] = &ledgerEntry{record: record, payload: payload, lease: lease}
		l.claims[claimID] = key
		return record, true, nil
	}

	record := entry.record
	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return record, false, nil
	case DeliveryStatusProcessing:
		if now.Before(record.UpdatedAt.Add(entry.lease)) {
			return record, false, nil
		}
	case DeliveryStatusRetryReady:
		if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
			return record, false, nil
		}
	}

	if record.ClaimID != "" {
		delete(l.claims, record.ClaimID)
	}
	l.nextID++
	claimID := fmt.Sprintf("delivery_claim_%d", l.nextID)
	record.ClaimID = claimID
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	entry.record = record
	entry.lease = lease
	l.claims[claimID] = key
	return record, true, nil
}

func (l *InMemoryDeliveryLedger) Get(_ context.Context, source, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.entries[ledgerKey(source, deliveryID)]
	if !exists {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %s/%s not found", source, deliveryID)
	}
	return entry.record, nil
}

func (l *InMemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	entry := l.entries[key]
	if entry == nil || entry.record.ClaimID != claimID {
		delete(l.claims, claimID)
		return nil
	}
	entry.record.Status = DeliveryStatusProcessed
	entry.record.NextAttemptAt = nil
	entry.record.UpdatedAt = l.now()
	delete(l.claims, claimID)
	return nil
}

func (l *InMemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	_ error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	entry := l.entries[key]
	if entry == nil || entry.record.ClaimID != claimID {
		delete(l.claims, claimID)
		return nil
	}
	now := l.now()
	if maxAttempts > 0 && entry.record.Attempts >= maxAttempts {
		entry.record.Status = DeliveryStatusDead
		entry.record.NextAttemptAt = nil
	} else {
		at := nextAttemptAt.UTC()
		entry.record.Status = DeliveryStatusRetryReady
		entry.record.NextAttemptAt = &at
	}
	entry.record.UpdatedAt = now
	delete(l.claims, claimID)
	return nil
}

func (l *InMemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ DeliveryLedger = (*InMemoryDeliveryLedger)(nil)
