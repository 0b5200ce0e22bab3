package core

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// Customer is the backend's buyer record. Phone doubles as the natural key:
// until the buyer shares a real contact it holds a handle-derived stand-in
// such as "@handle" or "tg_<conversation id>".
type Customer struct {
	ID          int64
	DisplayName string
	Phone       string
	StoreLabel  string
	Address     string
}

// Product is a read-only projection from the catalog.
type Product struct {
	ID       int64
	Name     string
	Category string
	Price    string
	ImageURL string
}

type Order struct {
	ID         int64
	CustomerID int64
	Status     OrderStatus
}

type OrderItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}

// SenderProfile carries what the transport knows about the message author.
type SenderProfile struct {
	FirstName string
	LastName  string
	Handle    string
	Phone     string
}

const FallbackDisplayName = "عميل"

// DisplayName joins the profile name parts, falling back to the generic
// Arabic form the storefront uses for anonymous buyers.
func (p SenderProfile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return FallbackDisplayName
	}
	return name
}

// NaturalKey derives the stable customer lookup key for this sender: the
// shared phone when present, the handle next, and a conversation-scoped
// pseudo phone as the last resort.
func (p SenderProfile) NaturalKey(conversationID int64) string {
	if phone := strings.TrimSpace(p.Phone); phone != "" {
		return phone
	}
	if handle := strings.TrimSpace(p.Handle); handle != "" {
		return "@" + strings.TrimPrefix(handle, "@")
	}
	return fmt.Sprintf("tg_%d", conversationID)
}

// SearchCursor remembers where a paginated catalog listing left off.
type SearchCursor struct {
	Keyword string
	Offset  int
}

// Session is the per-conversation state the relay keeps between webhook
// deliveries. It caches the resolved customer, tracks the in-flight order,
// and holds the pagination cursor. Sessions are owned by the session
// manager and must only be touched inside its per-conversation critical
// section.
type Session struct {
	ConversationID int64
	CustomerID     int64
	Customer       *Customer
	PendingOrderID int64
	OrderSeq       int
	Cursor         *SearchCursor
	LastSeenAt     time.Time
}

// NextOrderKey advances the per-session counter and returns the idempotency
// key recorded with an order creation, so a redelivered selection event
// cannot double-create the order.
func (s *Session) NextOrderKey(productID int64) string {
	s.OrderSeq++
	return fmt.Sprintf("ord_%d_%d_%d", s.ConversationID, productID, s.OrderSeq)
}

type EventKind string

const (
	EventCommand      EventKind = "command"
	EventSearchQuery  EventKind = "search_query"
	EventContactShare EventKind = "contact_share"
	EventButtonPress  EventKind = "button_press"
)

type ButtonAction string

const (
	ActionOrder   ButtonAction = "order"
	ActionConfirm ButtonAction = "confirm"
	ActionMore    ButtonAction = "more"
)

// Event is one classified webhook delivery. Exactly one Kind applies; the
// payload fields beyond the shared header are meaningful only for that kind.
type Event struct {
	Kind           EventKind
	UpdateID       int64
	ConversationID int64
	Sender         SenderProfile

	// EventCommand / EventSearchQuery
	Text string

	// EventContactShare
	SharedPhone string

	// EventButtonPress
	CallbackID string
	Action     ButtonAction
	ProductID  int64
	OrderID    int64
	Keyword    string
	Offset     int
}

// MenuButton is one label/action pair on an inline action menu.
type MenuButton struct {
	Label  string
	Action string
}

// Payload is an outbound message: plain text, or a photo with caption when
// ImageURL is set, either optionally carrying an inline action menu.
type Payload struct {
	Text     string
	ImageURL string
	Menu     []MenuButton
}
