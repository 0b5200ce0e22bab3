package commercebot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

// HandleEvent consumes one classified conversation event. Failures that
// matter to the buyer are answered with a short apology and swallowed,
// mirroring an over-the-counter exchange: the backend detail goes to the
// logs, never to the chat.
func (r *Relay) HandleEvent(ctx context.Context, event core.Event) error {
	switch event.Kind {
	case core.EventCommand:
		return r.handleCommand(ctx, event)
	case core.EventSearchQuery:
		return r.handleSearch(ctx, event, event.Text, 0)
	case core.EventContactShare:
		return r.handleContactShare(ctx, event)
	case core.EventButtonPress:
		return r.handleButtonPress(ctx, event)
	}
	return nil
}

func (r *Relay) handleCommand(ctx context.Context, event core.Event) error {
	if event.Text != "/start" {
		return nil
	}
	customer, greeted, err := r.resolve(ctx, event)
	if err != nil {
		return r.apologize(ctx, event.ConversationID, replySearchError, err)
	}
	if greeted {
		return nil
	}
	return r.send(ctx, event.ConversationID, welcomeReply(customer.DisplayName))
}

// resolve runs identity resolution for the event's conversation and
// greets the buyer once, on first contact, whatever kind of message
// opened the conversation. It reports whether the welcome went out.
func (r *Relay) resolve(ctx context.Context, event core.Event) (core.Customer, bool, error) {
	firstContact := false
	if err := r.service.Sessions().Do(ctx, event.ConversationID, func(session *core.Session) error {
		firstContact = session.CustomerID == 0
		return nil
	}); err != nil {
		return core.Customer{}, false, err
	}

	startedAt := time.Now()
	customer, err := r.resolver.Resolve(ctx, event.ConversationID, event.Sender)
	r.service.ObserveOperation(ctx, startedAt, "identity.resolve", err, map[string]any{
		"conversation_id": event.ConversationID,
	})
	if err != nil {
		return core.Customer{}, false, err
	}
	if firstContact {
		if err := r.send(ctx, event.ConversationID, welcomeReply(customer.DisplayName)); err != nil {
			return customer, true, err
		}
	}
	return customer, firstContact, nil
}

func (r *Relay) handleSearch(ctx context.Context, event core.Event, keyword string, offset int) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return r.send(ctx, event.ConversationID, core.Payload{Text: replySearchPrompt})
	}

	if _, _, err := r.resolve(ctx, event); err != nil {
		return r.apologize(ctx, event.ConversationID, replySearchError, err)
	}

	// A fresh search walks away from whatever order was mid-flight.
	if offset == 0 {
		if _, err := r.engine.AbandonPending(ctx, event.ConversationID); err != nil {
			return r.apologize(ctx, event.ConversationID, replySearchError, err)
		}
	}

	startedAt := time.Now()
	result, err := r.searcher.Search(ctx, keyword, offset)
	r.service.ObserveOperation(ctx, startedAt, "catalog.search", err, map[string]any{
		"conversation_id": event.ConversationID,
		"keyword":         keyword,
		"offset":          offset,
	})
	if err != nil {
		return r.apologize(ctx, event.ConversationID, replySearchError, err)
	}

	if len(result.Items) == 0 {
		return r.send(ctx, event.ConversationID, noResultsReply(keyword))
	}

	if err := r.rememberCursor(ctx, event.ConversationID, result.Keyword, result.NextOffset()); err != nil {
		return err
	}
	for _, product := range result.Items {
		if err := r.send(ctx, event.ConversationID, productReply(product)); err != nil {
			return err
		}
	}
	if result.HasMore() {
		return r.send(ctx, event.ConversationID, morePageReply(result))
	}
	return nil
}

func (r *Relay) handleContactShare(ctx context.Context, event core.Event) error {
	if _, _, err := r.resolve(ctx, event); err != nil {
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}

	// Sharing a phone while an order waits on confirmation doubles as
	// the confirmation tap: the number rides along into the confirm.
	var pendingID int64
	if err := r.service.Sessions().Do(ctx, event.ConversationID, func(session *core.Session) error {
		pendingID = session.PendingOrderID
		return nil
	}); err != nil {
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}
	phone := strings.TrimSpace(event.SharedPhone)
	if pendingID != 0 && phone != "" {
		return r.confirmOrder(ctx, event, pendingID, phone)
	}

	startedAt := time.Now()
	_, err := r.resolver.UpdatePhone(ctx, event.ConversationID, phone)
	r.service.ObserveOperation(ctx, startedAt, "identity.update_phone", err, map[string]any{
		"conversation_id": event.ConversationID,
	})
	if err != nil {
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}
	return r.send(ctx, event.ConversationID, core.Payload{Text: replyPhoneSaved})
}

func (r *Relay) handleButtonPress(ctx context.Context, event core.Event) error {
	// Acknowledge first so the client spinner closes even when the
	// action below fails.
	if event.CallbackID != "" {
		if err := r.service.Transport().AnswerCallback(ctx, event.CallbackID); err != nil {
			r.service.Logger().WithContext(ctx).Warn("callback acknowledgement failed",
				"conversation_id", event.ConversationID, "error", err)
		}
	}

	switch event.Action {
	case core.ActionOrder:
		return r.handleOrderPress(ctx, event)
	case core.ActionConfirm:
		return r.handleConfirmPress(ctx, event)
	case core.ActionMore:
		return r.handleSearch(ctx, event, event.Keyword, event.Offset)
	}
	return nil
}

func (r *Relay) handleOrderPress(ctx context.Context, event core.Event) error {
	if _, _, err := r.resolve(ctx, event); err != nil {
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}

	startedAt := time.Now()
	order, err := r.engine.SelectProduct(ctx, event.ConversationID, core.Product{ID: event.ProductID})
	r.service.ObserveOperation(ctx, startedAt, "workflow.select_product", err, map[string]any{
		"conversation_id": event.ConversationID,
		"product_id":      event.ProductID,
		"order_id":        order.ID,
	})
	if err != nil {
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}
	return nil
}

func (r *Relay) handleConfirmPress(ctx context.Context, event core.Event) error {
	return r.confirmOrder(ctx, event, event.OrderID, "")
}

// confirmOrder drives the pending order through confirmation. A non
// empty phone is persisted on the customer as part of the same flow.
func (r *Relay) confirmOrder(ctx context.Context, event core.Event, orderID int64, phone string) error {
	startedAt := time.Now()
	_, err := r.engine.Confirm(ctx, event.ConversationID, orderID, phone)
	r.service.ObserveOperation(ctx, startedAt, "workflow.confirm", err, map[string]any{
		"conversation_id": event.ConversationID,
		"order_id":        orderID,
	})
	if err != nil {
		var badInput core.BadInputError
		if errors.As(err, &badInput) {
			// Stale or repeated confirmation button: nothing to do.
			return nil
		}
		return r.apologize(ctx, event.ConversationID, replyOrderError, err)
	}
	return nil
}

// rememberCursor records where the conversation's listing left off.
func (r *Relay) rememberCursor(ctx context.Context, conversationID int64, keyword string, nextOffset int) error {
	return r.service.Sessions().Do(ctx, conversationID, func(session *core.Session) error {
		session.Cursor = &core.SearchCursor{Keyword: keyword, Offset: nextOffset}
		return nil
	})
}

// apologize reports err to the buyer as a short generic message. The
// event is considered handled afterwards: webhook redelivery would only
// repeat the apology, so the underlying error stops here and lives on in
// the logs.
func (r *Relay) apologize(ctx context.Context, conversationID int64, message string, err error) error {
	r.service.Logger().WithContext(ctx).Error("conversation action failed",
		"conversation_id", conversationID, "error", err)
	if sendErr := r.send(ctx, conversationID, core.Payload{Text: message}); sendErr != nil {
		r.service.Logger().WithContext(ctx).Error("apology delivery failed",
			"conversation_id", conversationID, "error", sendErr)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, conversationID int64, payload core.Payload) error {
	return r.service.Channel().Send(ctx, conversationID, payload)
}
