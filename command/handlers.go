package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-commercebot/core"
)

// OrderingService mutates order state for a conversation.
type OrderingService interface {
	SelectProduct(ctx context.Context, conversationID int64, product core.Product) (core.Order, error)
	Confirm(ctx context.Context, conversationID int64, orderID int64, phone string) (core.Order, error)
	AbandonPending(ctx context.Context, conversationID int64) (int64, error)
}

// IdentityService mutates the customer attached to a conversation.
type IdentityService interface {
	Resolve(ctx context.Context, conversationID int64, profile core.SenderProfile) (core.Customer, error)
	UpdatePhone(ctx context.Context, conversationID int64, phone string) (core.Customer, error)
}

// SessionJanitor evicts sessions idle past their TTL.
type SessionJanitor interface {
	EvictIdle(now time.Time) int
}

type PlaceOrderCommand struct {
	service OrderingService
}

func NewPlaceOrderCommand(service OrderingService) *PlaceOrderCommand {
	return &PlaceOrderCommand{service: service}
}

func (c *PlaceOrderCommand) Execute(ctx context.Context, msg PlaceOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ordering service is required")
	}
	out, err := c.service.SelectProduct(ctx, msg.ConversationID, msg.Product)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConfirmOrderCommand struct {
	service OrderingService
}

func NewConfirmOrderCommand(service OrderingService) *ConfirmOrderCommand {
	return &ConfirmOrderCommand{service: service}
}

func (c *ConfirmOrderCommand) Execute(ctx context.Context, msg ConfirmOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ordering service is required")
	}
	out, err := c.service.Confirm(ctx, msg.ConversationID, msg.OrderID, msg.Phone)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AbandonPendingOrderCommand struct {
	service OrderingService
}

func NewAbandonPendingOrderCommand(service OrderingService) *AbandonPendingOrderCommand {
	return &AbandonPendingOrderCommand{service: service}
}

func (c *AbandonPendingOrderCommand) Execute(ctx context.Context, msg AbandonPendingOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ordering service is required")
	}
	out, err := c.service.AbandonPending(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveCustomerCommand struct {
	service IdentityService
}

func NewResolveCustomerCommand(service IdentityService) *ResolveCustomerCommand {
	return &ResolveCustomerCommand{service: service}
}

func (c *ResolveCustomerCommand) Execute(ctx context.Context, msg ResolveCustomerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: identity service is required")
	}
	out, err := c.service.Resolve(ctx, msg.ConversationID, msg.Profile)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateCustomerPhoneCommand struct {
	service IdentityService
}

func NewUpdateCustomerPhoneCommand(service IdentityService) *UpdateCustomerPhoneCommand {
	return &UpdateCustomerPhoneCommand{service: service}
}

func (c *UpdateCustomerPhoneCommand) Execute(ctx context.Context, msg UpdateCustomerPhoneMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: identity service is required")
	}
	out, err := c.service.UpdatePhone(ctx, msg.ConversationID, msg.Phone)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EvictSessionsCommand struct {
	janitor SessionJanitor
	now     func() time.Time
}

func NewEvictSessionsCommand(janitor SessionJanitor) *EvictSessionsCommand {
	return &EvictSessionsCommand{janitor: janitor, now: time.Now}
}

func (c *EvictSessionsCommand) Execute(ctx context.Context, msg EvictSessionsMessage) error {
	if c == nil || c.janitor == nil {
		return commandDependencyError("command: session janitor is required")
	}
	at := msg.Now
	if at.IsZero() {
		at = c.now()
	}
	storeResult(ctx, c.janitor.EvictIdle(at))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
