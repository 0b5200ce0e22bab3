package commercebot

import (
	"fmt"

	"github.com/goliatone/go-commercebot/catalog"
	"github.com/goliatone/go-commercebot/core"
)

// Storefront copy. The audience is Arabic-speaking buyers; the strings
// stay in Arabic regardless of deployment locale.
const (
	replySearchPrompt = "أرسل كلمة للبحث 🔍 مثال: سكر"
	replySearchError  = "⚠️ حدث خطأ في البحث، حاول لاحقًا."
	replyOrderError   = "⚠️ حدث خطأ أثناء تسجيل الطلب، حاول لاحقًا."
	replyPhoneSaved   = "📞 تم حفظ رقمك بنجاح، شكرًا لك!"

	orderButtonLabel = "اطلب الآن"
	moreButtonLabel  = "عرض المزيد ⬇️"
)

func welcomeReply(displayName string) core.Payload {
	return core.Payload{Text: fmt.Sprintf("👋 أهلا %s، مرحبًا بك في متجرنا!", displayName)}
}

func noResultsReply(keyword string) core.Payload {
	return core.Payload{Text: fmt.Sprintf("🚫 لا يوجد نتائج لكلمة: %s", keyword)}
}

func productReply(product core.Product) core.Payload {
	return core.Payload{
		Text:     fmt.Sprintf("🛒 *%s*\n📦 %s\n💵 %s ل.س", product.Name, product.Category, product.Price),
		ImageURL: product.ImageURL,
		Menu: []core.MenuButton{
			{Label: orderButtonLabel, Action: fmt.Sprintf("order_%d", product.ID)},
		},
	}
}

func morePageReply(result catalog.Result) core.Payload {
	return core.Payload{
		Text: fmt.Sprintf("📄 يوجد %d نتائج إضافية", result.TotalRemaining),
		Menu: []core.MenuButton{
			{
				Label:  moreButtonLabel,
				Action: fmt.Sprintf("more_%s_%d", result.Keyword, result.NextOffset()),
			},
		},
	}
}
