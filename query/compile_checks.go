package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-commercebot/catalog"
	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/webhooks"
)

var (
	_ gocmd.Querier[SearchCatalogMessage, catalog.Result]           = (*SearchCatalogQuery)(nil)
	_ gocmd.Querier[SessionStateMessage, SessionSnapshot]           = (*SessionStateQuery)(nil)
	_ gocmd.Querier[CustomerByPhoneMessage, core.Customer]          = (*CustomerByPhoneQuery)(nil)
	_ gocmd.Querier[DeliveryStatusMessage, webhooks.DeliveryRecord] = (*DeliveryStatusQuery)(nil)
)
