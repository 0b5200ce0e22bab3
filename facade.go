package commercebot

import (
	"fmt"

	botcommand "github.com/goliatone/go-commercebot/command"
	botquery "github.com/goliatone/go-commercebot/query"
)

// Commands groups the mutating handlers bound to a live relay, for
// callers that drive the relay programmatically instead of through the
// webhook (operational tooling, the maintenance jobs, tests).
type Commands struct {
	PlaceOrder          *botcommand.PlaceOrderCommand
	ConfirmOrder        *botcommand.ConfirmOrderCommand
	AbandonPendingOrder *botcommand.AbandonPendingOrderCommand
	ResolveCustomer     *botcommand.ResolveCustomerCommand
	UpdateCustomerPhone *botcommand.UpdateCustomerPhoneCommand
	EvictSessions       *botcommand.EvictSessionsCommand
}

// Queries groups the read-side handlers over the same collaborators.
type Queries struct {
	SearchCatalog   *botquery.SearchCatalogQuery
	SessionState    *botquery.SessionStateQuery
	CustomerByPhone *botquery.CustomerByPhoneQuery
	DeliveryStatus  *botquery.DeliveryStatusQuery
}

// Facade is the command/query surface of one relay.
type Facade struct {
	relay    *Relay
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sessionReader botquery.SessionReader
}

// WithSessionReader overrides the session snapshot source, for session
// stores that do not expose Peek.
func WithSessionReader(reader botquery.SessionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.sessionReader = reader
	}
}

// NewFacade binds the command and query handlers to the relay's engine,
// resolver, searcher, sessions, backend, and delivery ledger.
func NewFacade(relay *Relay, opts ...FacadeOption) (*Facade, error) {
	if relay == nil {
		return nil, fmt.Errorf("commercebot: relay is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.sessionReader
	if reader == nil {
		reader, _ = relay.service.Sessions().(botquery.SessionReader)
	}

	facade := &Facade{relay: relay}
	facade.commands = Commands{
		PlaceOrder:          botcommand.NewPlaceOrderCommand(relay.engine),
		ConfirmOrder:        botcommand.NewConfirmOrderCommand(relay.engine),
		AbandonPendingOrder: botcommand.NewAbandonPendingOrderCommand(relay.engine),
		ResolveCustomer:     botcommand.NewResolveCustomerCommand(relay.resolver),
		UpdateCustomerPhone: botcommand.NewUpdateCustomerPhoneCommand(relay.resolver),
		EvictSessions:       botcommand.NewEvictSessionsCommand(relay.service.Sessions()),
	}
	facade.queries = Queries{
		SearchCatalog:   botquery.NewSearchCatalogQuery(relay.searcher),
		SessionState:    botquery.NewSessionStateQuery(reader),
		CustomerByPhone: botquery.NewCustomerByPhoneQuery(relay.service.Backend()),
		DeliveryStatus:  botquery.NewDeliveryStatusQuery(relay.ledger),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Relay() *Relay {
	if f == nil {
		return nil
	}
	return f.relay
}
