package command

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

type fakeOrdering struct {
	selected  []PlaceOrderMessage
	confirmed []ConfirmOrderMessage
	abandoned []int64
	order     core.Order
	err       error
}

func (f *fakeOrdering) SelectProduct(_ context.Context, conversationID int64, product core.Product) (core.Order, error) {
	f.selected = append(f.selected, PlaceOrderMessage{ConversationID: conversationID, Product: product})
	return f.order, f.err
}

func (f *fakeOrdering) Confirm(_ context.Context, conversationID int64, orderID int64, phone string) (core.Order, error) {
	f.confirmed = append(f.confirmed, ConfirmOrderMessage{ConversationID: conversationID, OrderID: orderID, Phone: phone})
	return f.order, f.err
}

func (f *fakeOrdering) AbandonPending(_ context.Context, conversationID int64) (int64, error) {
	f.abandoned = append(f.abandoned, conversationID)
	return f.order.ID, f.err
}

type fakeIdentity struct {
	resolved []ResolveCustomerMessage
	phones   []UpdateCustomerPhoneMessage
	customer core.Customer
	err      error
}

func (f *fakeIdentity) Resolve(_ context.Context, conversationID int64, profile core.SenderProfile) (core.Customer, error) {
	f.resolved = append(f.resolved, ResolveCustomerMessage{ConversationID: conversationID, Profile: profile})
	return f.customer, f.err
}

func (f *fakeIdentity) UpdatePhone(_ context.Context, conversationID int64, phone string) (core.Customer, error) {
	f.phones = append(f.phones, UpdateCustomerPhoneMessage{ConversationID: conversationID, Phone: phone})
	return f.customer, f.err
}

type fakeJanitor struct {
	at      []time.Time
	evicted int
}

func (f *fakeJanitor) EvictIdle(now time.Time) int {
	f.at = append(f.at, now)
	return f.evicted
}

func TestPlaceOrderCommand_Execute(t *testing.T) {
	svc := &fakeOrdering{order: core.Order{ID: 42}}
	cmd := NewPlaceOrderCommand(svc)

	msg := PlaceOrderMessage{ConversationID: 555, Product: core.Product{ID: 3}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(svc.selected) != 1 || svc.selected[0].Product.ID != 3 {
		t.Fatalf("unexpected selection %+v", svc.selected)
	}
}

func TestPlaceOrderCommand_RequiresService(t *testing.T) {
	cmd := NewPlaceOrderCommand(nil)
	if err := cmd.Execute(context.Background(), PlaceOrderMessage{ConversationID: 1, Product: core.Product{ID: 1}}); err == nil {
		t.Fatal("expected dependency error")
	}
}

func TestPlaceOrderMessage_Validate(t *testing.T) {
	if err := (PlaceOrderMessage{Product: core.Product{ID: 1}}).Validate(); err == nil {
		t.Fatal("expected missing conversation id to fail")
	}
	if err := (PlaceOrderMessage{ConversationID: 1}).Validate(); err == nil {
		t.Fatal("expected missing product id to fail")
	}
}

func TestConfirmOrderCommand_Execute(t *testing.T) {
	svc := &fakeOrdering{order: core.Order{ID: 42, Status: core.OrderStatusConfirmed}}
	cmd := NewConfirmOrderCommand(svc)

	err := cmd.Execute(context.Background(), ConfirmOrderMessage{ConversationID: 555, OrderID: 42, Phone: "+963911111111"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(svc.confirmed) != 1 || svc.confirmed[0].Phone != "+963911111111" {
		t.Fatalf("unexpected confirmation %+v", svc.confirmed)
	}
}

func TestConfirmOrderMessage_Validate(t *testing.T) {
	if err := (ConfirmOrderMessage{ConversationID: 1}).Validate(); err == nil {
		t.Fatal("expected missing order id to fail")
	}
	if err := (ConfirmOrderMessage{ConversationID: 1, OrderID: 42}).Validate(); err != nil {
		t.Fatalf("phone is optional: %v", err)
	}
}

func TestAbandonPendingOrderCommand_Execute(t *testing.T) {
	svc := &fakeOrdering{order: core.Order{ID: 42}}
	cmd := NewAbandonPendingOrderCommand(svc)

	if err := cmd.Execute(context.Background(), AbandonPendingOrderMessage{ConversationID: 555}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(svc.abandoned) != 1 || svc.abandoned[0] != 555 {
		t.Fatalf("unexpected abandon calls %v", svc.abandoned)
	}
}

func TestResolveCustomerCommand_Execute(t *testing.T) {
	svc := &fakeIdentity{customer: core.Customer{ID: 9}}
	cmd := NewResolveCustomerCommand(svc)

	msg := ResolveCustomerMessage{ConversationID: 555, Profile: core.SenderProfile{FirstName: "Amal"}}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(svc.resolved) != 1 || svc.resolved[0].Profile.FirstName != "Amal" {
		t.Fatalf("unexpected resolution %+v", svc.resolved)
	}
}

func TestUpdateCustomerPhoneCommand_Execute(t *testing.T) {
	svc := &fakeIdentity{customer: core.Customer{ID: 9}}
	cmd := NewUpdateCustomerPhoneCommand(svc)

	err := cmd.Execute(context.Background(), UpdateCustomerPhoneMessage{ConversationID: 555, Phone: "+963911111111"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(svc.phones) != 1 || svc.phones[0].Phone != "+963911111111" {
		t.Fatalf("unexpected phone updates %+v", svc.phones)
	}
}

func TestUpdateCustomerPhoneMessage_Validate(t *testing.T) {
	if err := (UpdateCustomerPhoneMessage{ConversationID: 1, Phone: "  "}).Validate(); err == nil {
		t.Fatal("expected blank phone to fail")
	}
}

func TestEvictSessionsCommand_Execute(t *testing.T) {
	janitor := &fakeJanitor{evicted: 3}
	cmd := NewEvictSessionsCommand(janitor)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := cmd.Execute(context.Background(), EvictSessionsMessage{Now: at}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(janitor.at) != 1 || !janitor.at[0].Equal(at) {
		t.Fatalf("unexpected sweep times %v", janitor.at)
	}
}

func TestEvictSessionsCommand_DefaultsClock(t *testing.T) {
	janitor := &fakeJanitor{}
	cmd := NewEvictSessionsCommand(janitor)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cmd.now = func() time.Time { return fixed }

	if err := cmd.Execute(context.Background(), EvictSessionsMessage{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(janitor.at) != 1 || !janitor.at[0].Equal(fixed) {
		t.Fatalf("expected sweep at injected clock, got %v", janitor.at)
	}
}
