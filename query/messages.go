package query

import (
	"fmt"
	"strings"
)

const (
	TypeSearchCatalog   = "commercebot.query.catalog.search"
	TypeSessionState    = "commercebot.query.session.state"
	TypeCustomerByPhone = "commercebot.query.customer.by_phone"
	TypeDeliveryStatus  = "commercebot.query.delivery.status"
)

type SearchCatalogMessage struct {
	Keyword string
	Offset  int
}

func (SearchCatalogMessage) Type() string { return TypeSearchCatalog }

func (m SearchCatalogMessage) Validate() error {
	if strings.TrimSpace(m.Keyword) == "" {
		return fmt.Errorf("query: keyword is required")
	}
	if m.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}

type SessionStateMessage struct {
	ConversationID int64
}

func (SessionStateMessage) Type() string { return TypeSessionState }

func (m SessionStateMessage) Validate() error {
	if m.ConversationID == 0 {
		return fmt.Errorf("query: conversation id is required")
	}
	return nil
}

type CustomerByPhoneMessage struct {
	Phone string
}

func (CustomerByPhoneMessage) Type() string { return TypeCustomerByPhone }

func (m CustomerByPhoneMessage) Validate() error {
	if strings.TrimSpace(m.Phone) == "" {
		return fmt.Errorf("query: phone is required")
	}
	return nil
}

type DeliveryStatusMessage struct {
	Source     string
	DeliveryID string
}

func (DeliveryStatusMessage) Type() string { return TypeDeliveryStatus }

func (m DeliveryStatusMessage) Validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("query: delivery source is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("query: delivery id is required")
	}
	return nil
}
