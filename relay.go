package commercebot

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-commercebot/backend"
	"github.com/goliatone/go-commercebot/catalog"
	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/delivery"
	"github.com/goliatone/go-commercebot/identity"
	"github.com/goliatone/go-commercebot/inbound"
	"github.com/goliatone/go-commercebot/session"
	"github.com/goliatone/go-commercebot/telegram"
	"github.com/goliatone/go-commercebot/webhooks"
	"github.com/goliatone/go-commercebot/workflow"
)

// Relay is the assembled conversational-commerce relay: identity
// resolution, catalog search, the order workflow, and the webhook intake
// wired over one service container. Construct it with NewRelay and mount
// Handler() behind the public URL.
type Relay struct {
	service    *core.Service
	resolver   *identity.Resolver
	searcher   *catalog.Searcher
	engine     *workflow.Engine
	dispatcher *inbound.Dispatcher
	processor  *webhooks.Processor
	server     *webhooks.Server
	ledger     webhooks.DeliveryLedger
}

// RelayOption adjusts collaborators that have in-process defaults.
type RelayOption func(*relayBuilder)

type relayBuilder struct {
	serviceOptions []core.Option
	ledger         webhooks.DeliveryLedger
}

// WithServiceOptions forwards options to the underlying service
// container (custom transport, backend, stores, logger).
func WithServiceOptions(options ...core.Option) RelayOption {
	return func(b *relayBuilder) {
		b.serviceOptions = append(b.serviceOptions, options...)
	}
}

// WithDeliveryLedger replaces the in-memory webhook dedupe ledger,
// normally with the SQL-backed one.
func WithDeliveryLedger(ledger webhooks.DeliveryLedger) RelayOption {
	return func(b *relayBuilder) {
		if ledger != nil {
			b.ledger = ledger
		}
	}
}

// NewRelay builds the full relay from cfg. Collaborators that reach the
// network (transport, backend) are built from the config unless service
// options replace them; session state, dedupe, and pacing default to
// in-process implementations.
func NewRelay(cfg core.Config, options ...RelayOption) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	builder := relayBuilder{}
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	transport, err := telegram.NewClient(telegram.Config{Token: cfg.BotToken})
	if err != nil {
		return nil, err
	}
	commerce, err := backend.NewClient(backend.Config{
		BaseURL:      cfg.Backend.URL,
		APIKeyHeader: cfg.Backend.APIKeyHeader,
		APIKey:       cfg.Backend.APIKey,
	})
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(cfg.Session.TTL)
	channel, err := delivery.NewChannel(delivery.Config{
		Transport:   transport,
		MinInterval: cfg.Delivery.MinInterval,
	})
	if err != nil {
		return nil, err
	}

	serviceOptions := append([]core.Option{
		core.WithTransport(transport),
		core.WithBackend(commerce),
		core.WithSessionStore(sessions),
		core.WithDeliveryChannel(channel),
		core.WithClaimStore(inbound.NewInMemoryClaimStore()),
	}, builder.serviceOptions...)

	service, err := core.NewService(cfg, serviceOptions...)
	if err != nil {
		return nil, err
	}
	return assembleRelay(service, builder.ledger)
}

// NewRelayFromService assembles a relay over an already-built service
// container; every collaborator comes from the container.
func NewRelayFromService(service *core.Service, options ...RelayOption) (*Relay, error) {
	if service == nil {
		return nil, core.ConfigMissingError{Field: "service"}
	}
	builder := relayBuilder{}
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}
	return assembleRelay(service, builder.ledger)
}

func assembleRelay(service *core.Service, ledger webhooks.DeliveryLedger) (*Relay, error) {
	cfg := service.Config()
	logger := service.Logger()

	resolver, err := identity.NewResolver(identity.Config{
		Backend:  service.Backend(),
		Sessions: service.Sessions(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	searcher, err := catalog.NewSearcher(catalog.Config{
		Backend:  service.Backend(),
		PageSize: cfg.Delivery.PageSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := workflow.NewEngine(workflow.Config{
		Backend:           service.Backend(),
		Sessions:          service.Sessions(),
		Channel:           service.Channel(),
		Logger:            logger,
		DistributorChatID: cfg.DistributorChatID,
	})
	if err != nil {
		return nil, err
	}

	relay := &Relay{
		service:  service,
		resolver: resolver,
		searcher: searcher,
		engine:   engine,
	}

	dispatcher := inbound.NewDispatcher(service.Claims(), inbound.HandlerFunc(relay.HandleEvent))
	dispatcher.Logger = logger
	relay.dispatcher = dispatcher

	if ledger == nil {
		ledger = webhooks.NewInMemoryDeliveryLedger()
	}
	relay.ledger = ledger
	processor := webhooks.NewProcessor(ledger, dispatcher)
	processor.Logger = logger
	relay.processor = processor

	server, err := webhooks.NewServer(cfg.BotToken, processor, logger)
	if err != nil {
		return nil, err
	}
	relay.server = server
	return relay, nil
}

// Service exposes the underlying container.
func (r *Relay) Service() *core.Service {
	return r.service
}

// Handler returns the webhook HTTP handler.
func (r *Relay) Handler() http.Handler {
	return r.server.Handler()
}

// WebhookPath returns the token-bearing path the transport posts to.
func (r *Relay) WebhookPath() string {
	return r.server.Path()
}

// RegisterWebhook points the transport at publicURL once at startup.
func (r *Relay) RegisterWebhook(ctx context.Context) error {
	return webhooks.Registrar{
		Transport: r.service.Transport(),
		PublicURL: r.service.Config().PublicURL,
		Token:     r.service.Config().BotToken,
		Logger:    r.service.Logger(),
	}.Register(ctx)
}

// EvictIdleSessions drops sessions idle past the configured TTL and
// returns how many were removed. The sweep job calls this on its
// schedule.
func (r *Relay) EvictIdleSessions(now time.Time) int {
	return r.service.Sessions().EvictIdle(now)
}
