// Package commercebot assembles the conversational-commerce relay: it
// receives messaging-platform webhooks, resolves buyers against the
// commerce backend, answers catalog searches, and walks orders through
// selection and confirmation.
package commercebot

import (
	"github.com/goliatone/go-commercebot/core"
)

type Config = core.Config

type BackendConfig = core.BackendConfig

type SessionConfig = core.SessionConfig

type DeliveryConfig = core.DeliveryConfig

type Option = core.Option

type Service = core.Service

type Customer = core.Customer
type Product = core.Product
type Order = core.Order
type OrderItem = core.OrderItem
type Event = core.Event
type Payload = core.Payload
type SenderProfile = core.SenderProfile
type Session = core.Session

type Transport = core.Transport
type Backend = core.Backend
type SessionStore = core.SessionStore
type DeliveryChannel = core.DeliveryChannel
type IdempotencyClaimStore = core.IdempotencyClaimStore

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithTransport       = core.WithTransport
	WithBackend         = core.WithBackend
	WithSessionStore    = core.WithSessionStore
	WithDeliveryChannel = core.WithDeliveryChannel
	WithClaimStore      = core.WithClaimStore
	WithJobEnqueuer     = core.WithJobEnqueuer
)

// DefaultConfig returns the relay defaults; the bot token and backend
// URL still have to come from the environment.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the bare service container without the relay wiring.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds the full relay; it is the one-call entry point used by
// cmd/botd.
func Setup(cfg Config, opts ...RelayOption) (*Relay, error) {
	return NewRelay(cfg, opts...)
}
