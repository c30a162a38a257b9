package domain

import "strings"

// Category is the closed set of support intents. Every processed message is
// routed to exactly one category; unknown router output falls back to
// CategoryAccountProfileOther.
type Category string

const (
	CategoryOrderPlacementStatus           Category = "OrderPlacementStatus"
	CategoryShippingDelivery               Category = "ShippingDelivery"
	CategoryReturnsCancellationsExchanges  Category = "ReturnsCancellationsExchanges"
	CategoryPaymentBilling                 Category = "PaymentBilling"
	CategoryProductInfoAvailability        Category = "ProductInfoAvailability"
	CategoryTechnicalIssues                Category = "TechnicalIssues"
	CategoryPromotionsDiscountsPricing     Category = "PromotionsDiscountsPricing"
	CategoryCustomerComplaintsSatisfaction Category = "CustomerComplaintsSatisfaction"
	CategoryAccountProfileOther            Category = "AccountProfileOther"
)

// DefaultCategory is the catch-all used when classification fails.
const DefaultCategory = CategoryAccountProfileOther

// AllCategories returns the full enumeration in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryOrderPlacementStatus,
		CategoryShippingDelivery,
		CategoryReturnsCancellationsExchanges,
		CategoryPaymentBilling,
		CategoryProductInfoAvailability,
		CategoryTechnicalIssues,
		CategoryPromotionsDiscountsPricing,
		CategoryCustomerComplaintsSatisfaction,
		CategoryAccountProfileOther,
	}
}

// ParseCategory matches s against the enumeration, tolerating surrounding
// whitespace and case differences.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range AllCategories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}
