package commercebot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/inbound"
	"github.com/goliatone/go-commercebot/session"
)

type fakeTransport struct {
	answered []string
}

func (t *fakeTransport) SendText(context.Context, int64, core.Payload) error  { return nil }
func (t *fakeTransport) SendPhoto(context.Context, int64, core.Payload) error { return nil }
func (t *fakeTransport) AnswerCallback(_ context.Context, callbackID string) error {
	t.answered = append(t.answered, callbackID)
	return nil
}
func (t *fakeTransport) RegisterWebhook(context.Context, string) error { return nil }

type fakeChannel struct {
	sent []struct {
		conversationID int64
		payload        core.Payload
	}
}

func (c *fakeChannel) Send(_ context.Context, conversationID int64, payload core.Payload) error {
	c.sent = append(c.sent, struct {
		conversationID int64
		payload        core.Payload
	}{conversationID, payload})
	return nil
}

func (c *fakeChannel) texts(conversationID int64) []string {
	var out []string
	for _, msg := range c.sent {
		if msg.conversationID == conversationID {
			out = append(out, msg.payload.Text)
		}
	}
	return out
}

func (c *fakeChannel) last(conversationID int64) core.Payload {
	var last core.Payload
	for _, msg := range c.sent {
		if msg.conversationID == conversationID {
			last = msg.payload
		}
	}
	return last
}

type fakeBackend struct {
	customers    map[string]core.Customer
	nextCustomer int64
	createCalls  int

	products  map[string][]core.Product
	searchErr error

	nextOrder   int64
	orders      map[int64]core.OrderStatus
	orderCalls  int
	items       []core.OrderItem
	phoneByID   map[int64]string
	updateCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		customers:    map[string]core.Customer{},
		nextCustomer: 8,
		products:     map[string][]core.Product{},
		nextOrder:    41,
		orders:       map[int64]core.OrderStatus{},
		phoneByID:    map[int64]string{},
	}
}

func (b *fakeBackend) CreateCustomer(_ context.Context, customer core.Customer) (core.Customer, error) {
	b.createCalls++
	if _, exists := b.customers[customer.Phone]; exists {
		return core.Customer{}, core.BackendConflictError{NaturalKey: customer.Phone}
	}
	b.nextCustomer++
	customer.ID = b.nextCustomer
	b.customers[customer.Phone] = customer
	return customer, nil
}

func (b *fakeBackend) CustomerByPhone(_ context.Context, phone string) (core.Customer, error) {
	customer, ok := b.customers[phone]
	if !ok {
		return core.Customer{}, core.BackendUnavailableError{Operation: "customer_by_phone", Status: 404}
	}
	return customer, nil
}

func (b *fakeBackend) UpdateCustomerPhone(_ context.Context, customerID int64, phone string) (core.Customer, error) {
	b.updateCalls++
	b.phoneByID[customerID] = phone
	return core.Customer{ID: customerID, Phone: phone}, nil
}

func (b *fakeBackend) SearchProducts(_ context.Context, keyword string) ([]core.Product, error) {
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	return b.products[keyword], nil
}

func (b *fakeBackend) CreateOrder(_ context.Context, customerID int64, _ string) (core.Order, error) {
	b.orderCalls++
	b.nextOrder++
	b.orders[b.nextOrder] = core.OrderStatusPending
	return core.Order{ID: b.nextOrder, CustomerID: customerID, Status: core.OrderStatusPending}, nil
}

func (b *fakeBackend) ConfirmOrder(_ context.Context, orderID int64) (core.Order, error) {
	b.orders[orderID] = core.OrderStatusConfirmed
	return core.Order{ID: orderID, Status: core.OrderStatusConfirmed}, nil
}

func (b *fakeBackend) CreateOrderItem(_ context.Context, item core.OrderItem) error {
	b.items = append(b.items, item)
	return nil
}

type relayFixture struct {
	relay     *Relay
	transport *fakeTransport
	channel   *fakeChannel
	backend   *fakeBackend
	sessions  *session.Manager
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	transport := &fakeTransport{}
	channel := &fakeChannel{}
	backend := newFakeBackend()
	sessions := session.NewManager(time.Hour)

	cfg := DefaultConfig()
	cfg.BotToken = "123:abc"
	cfg.Backend.URL = "https://commerce.internal"
	cfg.DistributorChatID = 4242

	service, err := NewService(cfg,
		WithTransport(transport),
		WithBackend(backend),
		WithSessionStore(sessions),
		WithDeliveryChannel(channel),
		WithClaimStore(inbound.NewInMemoryClaimStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	relay, err := NewRelayFromService(service)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return &relayFixture{relay: relay, transport: transport, channel: channel, backend: backend, sessions: sessions}
}

func sampleCatalog(n int) []core.Product {
	products := make([]core.Product, 0, n)
	for i := 1; i <= n; i++ {
		products = append(products, core.Product{
			ID:       int64(i),
			Name:     fmt.Sprintf("منتج %d", i),
			Category: "مواد غذائية",
			Price:    "12000",
		})
	}
	return products
}

func TestRelay_FirstContactWelcome(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventCommand,
		ConversationID: 555,
		Sender:         core.SenderProfile{FirstName: "Amal"},
		Text:           "/start",
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if _, exists := f.backend.customers["tg_555"]; !exists {
		t.Fatalf("expected customer registered under tg_555, got %v", f.backend.customers)
	}
	texts := f.channel.texts(555)
	if len(texts) != 1 || texts[0] != "👋 أهلا Amal، مرحبًا بك في متجرنا!" {
		t.Fatalf("unexpected welcome %v", texts)
	}
}

func TestRelay_EmptySearchPrompts(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventSearchQuery,
		ConversationID: 555,
		Text:           "   ",
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	texts := f.channel.texts(555)
	if len(texts) != 1 || texts[0] != replySearchPrompt {
		t.Fatalf("expected usage prompt, got %v", texts)
	}
	if f.backend.createCalls != 0 {
		t.Fatalf("expected no identity call for empty query, got %d", f.backend.createCalls)
	}
}

func TestRelay_SearchNoResults(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventSearchQuery,
		ConversationID: 555,
		Sender:         core.SenderProfile{FirstName: "Amal"},
		Text:           "سكر",
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	texts := f.channel.texts(555)
	if len(texts) != 2 || !strings.Contains(texts[0], "Amal") || texts[1] != "🚫 لا يوجد نتائج لكلمة: سكر" {
		t.Fatalf("expected welcome then no-results reply, got %v", texts)
	}
}

func TestRelay_SearchPaginates(t *testing.T) {
	f := newRelayFixture(t)
	f.backend.products["سكر"] = sampleCatalog(7)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventSearchQuery,
		ConversationID: 555,
		Sender:         core.SenderProfile{FirstName: "Amal"},
		Text:           "سكر",
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	msgs := f.channel.texts(555)
	if len(msgs) != 7 {
		t.Fatalf("expected welcome, 5 products, and a pagination notice, got %d: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[1], "منتج 1") || !strings.Contains(msgs[1], "ل.س") {
		t.Fatalf("unexpected product caption %q", msgs[1])
	}

	more := f.channel.last(555)
	if len(more.Menu) != 1 || more.Menu[0].Action != "more_سكر_5" {
		t.Fatalf("expected more_سكر_5 button, got %+v", more.Menu)
	}

	// follow the pagination button
	f.channel.sent = nil
	err = f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventButtonPress,
		ConversationID: 555,
		Sender:         core.SenderProfile{FirstName: "Amal"},
		CallbackID:     "cb1",
		Action:         core.ActionMore,
		Keyword:        "سكر",
		Offset:         5,
	})
	if err != nil {
		t.Fatalf("handle more: %v", err)
	}
	msgs = f.channel.texts(555)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 remaining products and no notice, got %v", msgs)
	}
}

func TestRelay_OrderPressWithUnresolvedSession(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind:           core.EventButtonPress,
		ConversationID: 555,
		Sender:         core.SenderProfile{FirstName: "Amal"},
		CallbackID:     "cb9",
		Action:         core.ActionOrder,
		ProductID:      3,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if f.backend.createCalls != 1 {
		t.Fatalf("expected identity resolution before ordering, got %d creates", f.backend.createCalls)
	}
	if f.backend.orderCalls != 1 || len(f.backend.items) != 1 {
		t.Fatalf("expected one order with one item, got %d orders %v", f.backend.orderCalls, f.backend.items)
	}
	if f.backend.items[0].ProductID != 3 || f.backend.items[0].Quantity != 1 {
		t.Fatalf("unexpected item %+v", f.backend.items[0])
	}
	if len(f.transport.answered) != 1 || f.transport.answered[0] != "cb9" {
		t.Fatalf("expected callback acknowledged, got %v", f.transport.answered)
	}
	texts := f.channel.texts(555)
	if len(texts) != 2 || !strings.Contains(texts[0], "Amal") || !strings.Contains(texts[1], "42") {
		t.Fatalf("expected welcome then creation reply naming order 42, got %v", texts)
	}
}

func TestRelay_ConfirmFlowNotifiesDistributor(t *testing.T) {
	f := newRelayFixture(t)

	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventButtonPress, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, CallbackID: "cb1",
		Action: core.ActionOrder, ProductID: 3,
	}); err != nil {
		t.Fatalf("order press: %v", err)
	}

	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventButtonPress, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, CallbackID: "cb2",
		Action: core.ActionConfirm, OrderID: 42,
	}); err != nil {
		t.Fatalf("confirm press: %v", err)
	}

	if f.backend.orders[42] != core.OrderStatusConfirmed {
		t.Fatalf("expected order confirmed, got %q", f.backend.orders[42])
	}
	if msgs := f.channel.texts(4242); len(msgs) != 1 || !strings.Contains(msgs[0], "42") {
		t.Fatalf("expected distributor notification, got %v", msgs)
	}

	// a redelivered confirm button is silently absorbed
	before := len(f.channel.sent)
	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventButtonPress, ConversationID: 555,
		CallbackID: "cb2", Action: core.ActionConfirm, OrderID: 42,
	}); err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if len(f.channel.sent) != before {
		t.Fatalf("expected no messages for stale confirm, got %v", f.channel.sent[before:])
	}
}

func TestRelay_FreshSearchAbandonsPendingOrder(t *testing.T) {
	f := newRelayFixture(t)
	f.backend.products["رز"] = sampleCatalog(1)

	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventButtonPress, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, CallbackID: "cb1",
		Action: core.ActionOrder, ProductID: 3,
	}); err != nil {
		t.Fatalf("order press: %v", err)
	}

	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventSearchQuery, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, Text: "رز",
	}); err != nil {
		t.Fatalf("search: %v", err)
	}

	state, _ := f.sessions.Peek(555)
	if state.PendingOrderID != 0 {
		t.Fatalf("expected pending order cleared by new search, got %d", state.PendingOrderID)
	}
	if f.backend.orders[42] != core.OrderStatusPending {
		t.Fatalf("expected backend order left pending, got %q", f.backend.orders[42])
	}
}

func TestRelay_SearchFailureApologizes(t *testing.T) {
	f := newRelayFixture(t)
	f.backend.searchErr = core.BackendUnavailableError{Operation: "search_products", Status: 503}

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventSearchQuery, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, Text: "سكر",
	})
	if err != nil {
		t.Fatalf("expected apology instead of error, got %v", err)
	}
	texts := f.channel.texts(555)
	if len(texts) != 2 || texts[1] != replySearchError {
		t.Fatalf("expected welcome then search apology, got %v", texts)
	}
}

func TestRelay_ContactShareUpdatesPhone(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventContactShare, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, SharedPhone: "+963911111111",
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if f.backend.updateCalls != 1 {
		t.Fatalf("expected one phone update, got %d", f.backend.updateCalls)
	}
	texts := f.channel.texts(555)
	if len(texts) != 2 || texts[1] != replyPhoneSaved {
		t.Fatalf("expected welcome then phone-saved reply, got %v", texts)
	}
}

func TestRelay_ContactShareConfirmsPendingOrder(t *testing.T) {
	f := newRelayFixture(t)

	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventButtonPress, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, CallbackID: "cb1",
		Action: core.ActionOrder, ProductID: 3,
	}); err != nil {
		t.Fatalf("order press: %v", err)
	}

	// sharing a phone while order 42 awaits confirmation confirms it
	if err := f.relay.HandleEvent(context.Background(), core.Event{
		Kind: core.EventContactShare, ConversationID: 555,
		Sender: core.SenderProfile{FirstName: "Amal"}, SharedPhone: "+963911111111",
	}); err != nil {
		t.Fatalf("contact share: %v", err)
	}

	if f.backend.orders[42] != core.OrderStatusConfirmed {
		t.Fatalf("expected order confirmed by phone share, got %q", f.backend.orders[42])
	}
	state, _ := f.sessions.Peek(555)
	if state.PendingOrderID != 0 {
		t.Fatalf("expected pending order cleared, got %d", state.PendingOrderID)
	}
	if f.backend.updateCalls != 1 || f.backend.phoneByID[9] != "+963911111111" {
		t.Fatalf("expected one phone update for customer 9, got %d %v", f.backend.updateCalls, f.backend.phoneByID)
	}

	buyer := f.channel.texts(555)
	if len(buyer) != 3 || !strings.Contains(buyer[2], "42") {
		t.Fatalf("expected welcome, creation, and confirmation replies, got %v", buyer)
	}
	distributor := f.channel.texts(4242)
	if len(distributor) != 1 || !strings.Contains(distributor[0], "+963911111111") {
		t.Fatalf("expected distributor notification with phone, got %v", distributor)
	}
}

func TestRelay_WebhookEndToEnd(t *testing.T) {
	f := newRelayFixture(t)
	f.backend.products["سكر"] = sampleCatalog(1)

	body := `{
		"update_id": 900,
		"message": {
			"from": {"id": 555, "first_name": "Amal"},
			"chat": {"id": 555},
			"text": "سكر"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, f.relay.WebhookPath(), strings.NewReader(body))
	res := httptest.NewRecorder()
	f.relay.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	texts := f.channel.texts(555)
	if len(texts) != 2 || !strings.Contains(texts[0], "Amal") || !strings.Contains(texts[1], "منتج 1") {
		t.Fatalf("expected welcome then product reply, got %v", texts)
	}

	// redelivery of the same update id is absorbed by the ledger
	req = httptest.NewRequest(http.MethodPost, f.relay.WebhookPath(), strings.NewReader(body))
	res = httptest.NewRecorder()
	f.relay.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", res.Code)
	}
	if len(f.channel.texts(555)) != 2 {
		t.Fatalf("expected no duplicate replies, got %v", f.channel.texts(555))
	}
}
