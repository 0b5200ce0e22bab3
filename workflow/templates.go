package workflow

import (
	"fmt"

	"github.com/goliatone/go-commercebot/core"
)

const confirmButtonLabel = "تأكيد الطلب ✅"

func confirmAction(orderID int64) string {
	return fmt.Sprintf("confirm_%d", orderID)
}

func orderCreatedPayload(orderID int64) core.Payload {
	return core.Payload{
		Text: fmt.Sprintf("✅ تم إضافة المنتج إلى طلبك بنجاح.\n🎉 رقم الطلب: %d\n🚚 سيتم التواصل معك للتوصيل.", orderID),
		Menu: []core.MenuButton{
			{Label: confirmButtonLabel, Action: confirmAction(orderID)},
		},
	}
}

func orderConfirmedPayload(order core.Order, customer core.Customer) core.Payload {
	return core.Payload{
		Text: fmt.Sprintf(
			"✅ تم تأكيد طلبك رقم %d.\n👤 %s\n📞 %s\n🚚 سيتم التواصل معك قريبًا للتوصيل.",
			order.ID, customer.DisplayName, customer.Phone,
		),
	}
}

func distributorPayload(order core.Order, customer core.Customer) core.Payload {
	return core.Payload{
		Text: fmt.Sprintf(
			"📦 طلب جديد مؤكد\n🧾 رقم الطلب: %d\n👤 العميل: %s\n📞 التواصل: %s",
			order.ID, customer.DisplayName, customer.Phone,
		),
	}
}
