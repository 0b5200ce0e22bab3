package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[PlaceOrderMessage]          = (*PlaceOrderCommand)(nil)
	_ gocmd.Commander[ConfirmOrderMessage]        = (*ConfirmOrderCommand)(nil)
	_ gocmd.Commander[AbandonPendingOrderMessage] = (*AbandonPendingOrderCommand)(nil)
	_ gocmd.Commander[ResolveCustomerMessage]     = (*ResolveCustomerCommand)(nil)
	_ gocmd.Commander[UpdateCustomerPhoneMessage] = (*UpdateCustomerPhoneCommand)(nil)
	_ gocmd.Commander[EvictSessionsMessage]       = (*EvictSessionsCommand)(nil)
)
