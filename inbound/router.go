package inbound

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-commercebot/core"
)

// Update is the transport-neutral projection of one webhook delivery:
// either a chat message (Text / ContactPhone set) or a button press
// (Callback fields set). The transport client builds it; the router
// classifies it.
type Update struct {
	UpdateID       int64
	ConversationID int64
	Sender         core.SenderProfile

	Text         string
	ContactPhone string

	CallbackID   string
	CallbackData string
}

// Router classifies updates into exactly one event kind. Updates that
// carry nothing actionable (no text, no contact, no recognizable action
// tag) are dropped without classification so the relay stays silent on
// them.
type Router struct{}

// Classify maps update to its event. ok is false when the update should
// be ignored entirely.
func (Router) Classify(update Update) (event core.Event, ok bool) {
	event = core.Event{
		UpdateID:       update.UpdateID,
		ConversationID: update.ConversationID,
		Sender:         update.Sender,
	}

	if update.CallbackID != "" || update.CallbackData != "" {
		action, ok := parseActionTag(update.CallbackData)
		if !ok {
			return core.Event{}, false
		}
		event.Kind = core.EventButtonPress
		event.CallbackID = update.CallbackID
		event.Action = action.kind
		event.ProductID = action.productID
		event.OrderID = action.orderID
		event.Keyword = action.keyword
		event.Offset = action.offset
		return event, true
	}

	if phone := strings.TrimSpace(update.ContactPhone); phone != "" {
		event.Kind = core.EventContactShare
		event.SharedPhone = phone
		return event, true
	}

	text := strings.TrimSpace(update.Text)
	if strings.HasPrefix(text, "/") {
		event.Kind = core.EventCommand
		event.Text = text
		return event, true
	}

	// An empty search query is still an event: the relay answers it with
	// a usage prompt instead of calling the catalog.
	event.Kind = core.EventSearchQuery
	event.Text = text
	return event, true
}

type actionTag struct {
	kind      core.ButtonAction
	productID int64
	orderID   int64
	keyword   string
	offset    int
}

// parseActionTag decodes the compact callback grammar: order_<productId>,
// confirm_<orderId>, more_<keyword>_<offset>. The keyword segment of a
// "more" tag may itself contain underscores, so the offset is taken from
// the last segment.
func parseActionTag(tag string) (actionTag, bool) {
	tag = strings.TrimSpace(tag)
	switch {
	case strings.HasPrefix(tag, "order_"):
		id, err := strconv.ParseInt(tag[len("order_"):], 10, 64)
		if err != nil || id <= 0 {
			return actionTag{}, false
		}
		return actionTag{kind: core.ActionOrder, productID: id}, true

	case strings.HasPrefix(tag, "confirm_"):
		id, err := strconv.ParseInt(tag[len("confirm_"):], 10, 64)
		if err != nil || id <= 0 {
			return actionTag{}, false
		}
		return actionTag{kind: core.ActionConfirm, orderID: id}, true

	case strings.HasPrefix(tag, "more_"):
		rest := tag[len("more_"):]
		cut := strings.LastIndex(rest, "_")
		if cut <= 0 {
			return actionTag{}, false
		}
		keyword := strings.TrimSpace(rest[:cut])
		offset, err := strconv.Atoi(rest[cut+1:])
		if err != nil || keyword == "" || offset < 0 {
			return actionTag{}, false
		}
		return actionTag{kind: core.ActionMore, keyword: keyword, offset: offset}, true
	}
	return actionTag{}, false
}
