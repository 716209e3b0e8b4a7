package model

// Category is one of the fixed spending categories.
type Category string

const (
	CategoryGroceries     Category = "Groceries"
	CategoryDiningOut     Category = "Dining Out"
	CategoryTransport     Category = "Transport"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryInsurance     Category = "Insurance"
	CategorySubscriptions Category = "Subscriptions"
	CategoryShopping      Category = "Shopping"
	CategoryTravel        Category = "Travel"
	CategoryPersonalCare  Category = "Personal Care"
	CategoryHome          Category = "Home"
	CategoryEducation     Category = "Education"
	CategoryGifts         Category = "Gifts"
	CategoryFees          Category = "Fees & Charges"
	CategoryIncome        Category = "Income"
	CategoryTransfer      Category = "Transfer"
	CategoryUncategorized Category = "Uncategorized"
)

// LegacyFeesCategory is the fee category name written by older backups.
const LegacyFeesCategory = "Merchant Card Fees & Surcharges"

var categories = []Category{
	CategoryGroceries,
	CategoryDiningOut,
	CategoryTransport,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryHealth,
	CategoryInsurance,
	CategorySubscriptions,
	CategoryShopping,
	CategoryTravel,
	CategoryPersonalCare,
	CategoryHome,
	CategoryEducation,
	CategoryGifts,
	CategoryFees,
	CategoryIncome,
	CategoryTransfer,
	CategoryUncategorized,
}

// Categories returns the closed category set in display order.
func Categories() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

// IsValidCategory reports whether name is in the closed category set.
// The comparison is exact.
func IsValidCategory(name string) bool {
	for _, c := range categories {
		if string(c) == name {
			return true
		}
	}
	return false
}

// ImpliesRecurring reports whether manually assigning category c marks the
// transaction as a recurring bill.
func ImpliesRecurring(c string) bool {
	return c == string(CategoryUtilities) || c == string(CategorySubscriptions)
}

// NormalizeCategory maps legacy category names onto the current set.
func NormalizeCategory(name string) string {
	if name == LegacyFeesCategory {
		return string(CategoryFees)
	}
	return name
}
