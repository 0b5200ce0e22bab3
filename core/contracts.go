package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Transport is the messaging platform seen through the narrowest surface the
// relay needs: two send shapes, the button acknowledgement that closes the
// client-side spinner, and one-time webhook registration.
type Transport interface {
	SendText(ctx context.Context, conversationID int64, payload Payload) error
	SendPhoto(ctx context.Context, conversationID int64, payload Payload) error
	AnswerCallback(ctx context.Context, callbackID string) error
	RegisterWebhook(ctx context.Context, url string) error
}

// Backend is the remote data store that owns customers, products, and
// orders. The relay only caches what it reads here, never authoritatively.
type Backend interface {
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	CustomerByPhone(ctx context.Context, phone string) (Customer, error)
	UpdateCustomerPhone(ctx context.Context, customerID int64, phone string) (Customer, error)
	SearchProducts(ctx context.Context, keyword string) ([]Product, error)
	CreateOrder(ctx context.Context, customerID int64, idempotencyKey string) (Order, error)
	ConfirmOrder(ctx context.Context, orderID int64) (Order, error)
	CreateOrderItem(ctx context.Context, item OrderItem) error
}

// SessionStore serializes access per conversation key: fn runs inside the
// conversation's critical section with exclusive ownership of the session.
type SessionStore interface {
	Do(ctx context.Context, conversationID int64, fn func(session *Session) error) error
	EvictIdle(now time.Time) int
}

// DeliveryChannel sends outbound payloads with bounded throttle retry and
// per-conversation pacing.
type DeliveryChannel interface {
	Send(ctx context.Context, conversationID int64, payload Payload) error
}

// IdempotencyClaimStore guards one-shot processing of inbound deliveries.
// Claim returns accepted=false when the key is already held or completed.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

// JobExecutionMessage is the relay's queue contract for background sweeps
// (session eviction, pending-order expiry); adapters/gojob bridges it to
// go-job.
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
