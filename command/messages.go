package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

const (
	TypePlaceOrder          = "commercebot.command.order.place"
	TypeConfirmOrder        = "commercebot.command.order.confirm"
	TypeAbandonPendingOrder = "commercebot.command.order.abandon"
	TypeResolveCustomer     = "commercebot.command.customer.resolve"
	TypeUpdateCustomerPhone = "commercebot.command.customer.update_phone"
	TypeEvictSessions       = "commercebot.command.sessions.evict"
)

type PlaceOrderMessage struct {
	ConversationID int64
	Product        core.Product
}

func (PlaceOrderMessage) Type() string { return TypePlaceOrder }

func (m PlaceOrderMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("command: conversation id is required")
	}
	if m.Product.ID <= 0 {
		return fmt.Errorf("command: product id is required")
	}
	return nil
}

type ConfirmOrderMessage struct {
	ConversationID int64
	OrderID        int64
	// Phone, when present, is persisted on the customer before confirming.
	Phone string
}

func (ConfirmOrderMessage) Type() string { return TypeConfirmOrder }

func (m ConfirmOrderMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("command: conversation id is required")
	}
	if m.OrderID <= 0 {
		return fmt.Errorf("command: order id is required")
	}
	return nil
}

type AbandonPendingOrderMessage struct {
	ConversationID int64
}

func (AbandonPendingOrderMessage) Type() string { return TypeAbandonPendingOrder }

func (m AbandonPendingOrderMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("command: conversation id is required")
	}
	return nil
}

type ResolveCustomerMessage struct {
	ConversationID int64
	Profile        core.SenderProfile
}

func (ResolveCustomerMessage) Type() string { return TypeResolveCustomer }

func (m ResolveCustomerMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("command: conversation id is required")
	}
	return nil
}

type UpdateCustomerPhoneMessage struct {
	ConversationID int64
	Phone          string
}

func (UpdateCustomerPhoneMessage) Type() string { return TypeUpdateCustomerPhone }

func (m UpdateCustomerPhoneMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("command: conversation id is required")
	}
	if strings.TrimSpace(m.Phone) == "" {
		return fmt.Errorf("command: phone is required")
	}
	return nil
}

// EvictSessionsMessage sweeps conversation sessions idle past their TTL.
// A zero Now defaults to the wall clock at execution time.
type EvictSessionsMessage struct {
	Now time.Time
}

func (EvictSessionsMessage) Type() string { return TypeEvictSessions }

func (EvictSessionsMessage) Validate() error { return nil }
