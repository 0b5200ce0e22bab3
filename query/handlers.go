package query

import (
	"context"

	"github.com/goliatone/go-commercebot/catalog"
	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/webhooks"
)

// CatalogReader serves paged keyword searches.
type CatalogReader interface {
	Search(ctx context.Context, keyword string, offset int) (catalog.Result, error)
}

// SessionReader exposes conversation state without touching it.
type SessionReader interface {
	Peek(conversationID int64) (core.Session, bool)
}

// CustomerReader looks customers up by their natural key.
type CustomerReader interface {
	CustomerByPhone(ctx context.Context, phone string) (core.Customer, error)
}

// DeliveryReader reads ledger rows for operational inspection.
type DeliveryReader interface {
	Get(ctx context.Context, source string, deliveryID string) (webhooks.DeliveryRecord, error)
}

type SearchCatalogQuery struct {
	reader CatalogReader
}

func NewSearchCatalogQuery(reader CatalogReader) *SearchCatalogQuery {
	return &SearchCatalogQuery{reader: reader}
}

func (q *SearchCatalogQuery) Query(ctx context.Context, msg SearchCatalogMessage) (catalog.Result, error) {
	if q == nil || q.reader == nil {
		return catalog.Result{}, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.Search(ctx, msg.Keyword, msg.Offset)
}

// SessionSnapshot is a point-in-time view of one conversation.
type SessionSnapshot struct {
	Session core.Session
	Found   bool
}

type SessionStateQuery struct {
	reader SessionReader
}

func NewSessionStateQuery(reader SessionReader) *SessionStateQuery {
	return &SessionStateQuery{reader: reader}
}

func (q *SessionStateQuery) Query(_ context.Context, msg SessionStateMessage) (SessionSnapshot, error) {
	if q == nil || q.reader == nil {
		return SessionSnapshot{}, queryDependencyError("query: session reader is required")
	}
	state, found := q.reader.Peek(msg.ConversationID)
	return SessionSnapshot{Session: state, Found: found}, nil
}

type CustomerByPhoneQuery struct {
	reader CustomerReader
}

func NewCustomerByPhoneQuery(reader CustomerReader) *CustomerByPhoneQuery {
	return &CustomerByPhoneQuery{reader: reader}
}

func (q *CustomerByPhoneQuery) Query(ctx context.Context, msg CustomerByPhoneMessage) (core.Customer, error) {
	if q == nil || q.reader == nil {
		return core.Customer{}, queryDependencyError("query: customer reader is required")
	}
	return q.reader.CustomerByPhone(ctx, msg.Phone)
}

type DeliveryStatusQuery struct {
	reader DeliveryReader
}

func NewDeliveryStatusQuery(reader DeliveryReader) *DeliveryStatusQuery {
	return &DeliveryStatusQuery{reader: reader}
}

func (q *DeliveryStatusQuery) Query(ctx context.Context, msg DeliveryStatusMessage) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.Get(ctx, msg.Source, msg.DeliveryID)
}
