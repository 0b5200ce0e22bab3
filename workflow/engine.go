package workflow

import (
	"context"
	"fmt"

	"github.com/goliatone/go-commercebot/core"
)

// Config holds the order engine collaborators.
type Config struct {
	Backend           core.Backend
	Sessions          core.SessionStore
	Channel           core.DeliveryChannel
	Logger            core.Logger
	DistributorChatID int64
}

// Engine drives the order lifecycle for a conversation. All session
// mutation happens inside the session store's per-conversation critical
// section, so concurrent deliveries for the same chat serialize here.
type Engine struct {
	backend           core.Backend
	sessions          core.SessionStore
	channel           core.DeliveryChannel
	logger            core.Logger
	distributorChatID int64
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("workflow: backend client is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("workflow: session store is required")
	}
	if cfg.Channel == nil {
		return nil, fmt.Errorf("workflow: delivery channel is required")
	}
	return &Engine{
		backend:           cfg.Backend,
		sessions:          cfg.Sessions,
		channel:           cfg.Channel,
		logger:            cfg.Logger,
		distributorChatID: cfg.DistributorChatID,
	}, nil
}

// SelectProduct adds product to the conversation's order. The first
// selection creates the order against the backend with a session-scoped
// idempotency key; later selections reuse the pending order. The pending
// order id is recorded only after the item write succeeds, so a creation
// that fails halfway leaves the conversation idle with nothing to resume.
// An order created and then orphaned by an item failure stays pending on
// the backend until the expiry sweep claims it.
func (e *Engine) SelectProduct(ctx context.Context, conversationID int64, product core.Product) (core.Order, error) {
	var order core.Order
	err := e.sessions.Do(ctx, conversationID, func(session *core.Session) error {
		if session.CustomerID == 0 {
			return core.BadInputError{Reason: "conversation has no resolved customer"}
		}

		orderID := session.PendingOrderID
		if orderID == 0 {
			e.logTransition(ctx, conversationID, StateIdle, StateOrderInitiated)
			created, err := e.backend.CreateOrder(ctx, session.CustomerID, session.NextOrderKey(product.ID))
			if err != nil {
				return err
			}
			orderID = created.ID
		}

		item := core.OrderItem{OrderID: orderID, ProductID: product.ID, Quantity: 1}
		if err := e.backend.CreateOrderItem(ctx, item); err != nil {
			return err
		}

		session.PendingOrderID = orderID
		order = core.Order{ID: orderID, CustomerID: session.CustomerID, Status: core.OrderStatusPending}
		return nil
	})
	if err != nil {
		return core.Order{}, err
	}

	e.logTransition(ctx, conversationID, StateOrderInitiated, StateAwaitingConfirmation)
	if err := e.channel.Send(ctx, conversationID, orderCreatedPayload(order.ID)); err != nil {
		return core.Order{}, err
	}
	return order, nil
}

// Confirm finalizes the conversation's pending order. When phone is set it
// is written to the customer record first, so the distributor gets a real
// contact. A confirmation for an order that is not the pending one (a
// stale or redelivered button) is rejected without touching the backend.
// The pending order id clears exactly once, on backend success; failures
// keep it so the buyer can press the button again.
func (e *Engine) Confirm(ctx context.Context, conversationID int64, orderID int64, phone string) (core.Order, error) {
	var (
		order    core.Order
		customer core.Customer
	)
	err := e.sessions.Do(ctx, conversationID, func(session *core.Session) error {
		if session.PendingOrderID == 0 || session.PendingOrderID != orderID {
			return core.BadInputError{Reason: "no matching pending order for confirmation"}
		}

		e.logTransition(ctx, conversationID, StateAwaitingConfirmation, StateConfirming)
		if phone != "" && session.Customer != nil {
			updated, err := e.backend.UpdateCustomerPhone(ctx, session.Customer.ID, phone)
			if err != nil {
				return err
			}
			session.Customer.Phone = updated.Phone
		}

		confirmed, err := e.backend.ConfirmOrder(ctx, orderID)
		if err != nil {
			return err
		}

		session.PendingOrderID = 0
		order = confirmed
		if session.Customer != nil {
			customer = *session.Customer
		}
		return nil
	})
	if err != nil {
		return core.Order{}, err
	}

	e.logTransition(ctx, conversationID, StateConfirming, StateConfirmed)
	if err := e.channel.Send(ctx, conversationID, orderConfirmedPayload(order, customer)); err != nil {
		e.logWarn(ctx, "order confirmed but customer notification failed",
			"conversation_id", conversationID, "order_id", order.ID, "error", err)
	}
	e.notifyDistributor(ctx, order, customer)
	return order, nil
}

// AbandonPending drops the conversation's pending order id, returning the
// abandoned id or zero. A fresh search calls this so the next selection
// starts a new order; the backend record is untouched and left to the
// expiry sweep.
func (e *Engine) AbandonPending(ctx context.Context, conversationID int64) (int64, error) {
	var abandoned int64
	err := e.sessions.Do(ctx, conversationID, func(session *core.Session) error {
		abandoned = session.PendingOrderID
		session.PendingOrderID = 0
		return nil
	})
	if err != nil {
		return 0, err
	}
	if abandoned != 0 {
		e.logInfo(ctx, "pending order abandoned by new search",
			"conversation_id", conversationID, "order_id", abandoned)
	}
	return abandoned, nil
}

// notifyDistributor forwards a confirmed order to the distributor chat.
// The order is already final, so a delivery failure here is logged and
// never surfaced to the buyer.
func (e *Engine) notifyDistributor(ctx context.Context, order core.Order, customer core.Customer) {
	if e.distributorChatID == 0 {
		return
	}
	if err := e.channel.Send(ctx, e.distributorChatID, distributorPayload(order, customer)); err != nil {
		e.logWarn(ctx, "distributor notification failed",
			"order_id", order.ID, "distributor_chat_id", e.distributorChatID, "error", err)
	}
}

func (e *Engine) logTransition(ctx context.Context, conversationID int64, from, to State) {
	if e.logger == nil {
		return
	}
	e.withContext(ctx).Debug("order state transition",
		"conversation_id", conversationID, "from", string(from), "to", string(to))
}

func (e *Engine) logInfo(ctx context.Context, message string, args ...any) {
	if e.logger == nil {
		return
	}
	e.withContext(ctx).Info(message, args...)
}

func (e *Engine) logWarn(ctx context.Context, message string, args ...any) {
	if e.logger == nil {
		return
	}
	e.withContext(ctx).Warn(message, args...)
}

func (e *Engine) withContext(ctx context.Context) core.Logger {
	if ctx == nil {
		return e.logger
	}
	return e.logger.WithContext(ctx)
}
