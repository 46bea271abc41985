package domain

// Modality is the input kind driving template and backend selection.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// TransactionType separates money coming in from money going out.
type TransactionType string

const (
	TypeRevenue TransactionType = "revenue"
	TypeExpense TransactionType = "expense"
)

// Confidence indicates how a category label was resolved.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // exact taxonomy match
	ConfidenceMedium Confidence = "medium" // alias or fuzzy match
	ConfidenceLow    Confidence = "low"    // fallback default
)

// SettlementStatus tracks whether the money behind a record has landed.
// Platform revenue (delivery apps, card terminals) settles days after the
// transaction date; cash settles immediately.
type SettlementStatus string

const (
	SettlementSettled SettlementStatus = "settled"
	SettlementPending SettlementStatus = "pending"
)

// Canonical revenue sources. The value set is a wire contract: names and
// values must not change silently.
const (
	SourceCash       = "cash"
	SourceCreditCard = "credit_card"
	SourceUberEats   = "ubereats"
	SourceFoodpanda  = "foodpanda"
	SourceGroupMeal  = "group_meal"
	SourceOther      = "other"
)

// Canonical expense categories.
const (
	CategoryIngredients = "ingredients"
	CategoryRent        = "rent"
	CategoryPayroll     = "payroll"
	CategoryUtilities   = "utilities"
	CategoryOther       = "other"
)

// RevenueSources is the closed taxonomy for revenue records, in display order.
var RevenueSources = []string{
	SourceCash,
	SourceCreditCard,
	SourceUberEats,
	SourceFoodpanda,
	SourceGroupMeal,
	SourceOther,
}

// ExpenseCategories is the closed taxonomy for expense records, in display order.
var ExpenseCategories = []string{
	CategoryIngredients,
	CategoryRent,
	CategoryPayroll,
	CategoryUtilities,
	CategoryOther,
}

// IsRevenueSource reports whether s is a canonical revenue source.
func IsRevenueSource(s string) bool {
	for _, v := range RevenueSources {
		if v == s {
			return true
		}
	}
	return false
}

// IsExpenseCategory reports whether s is a canonical expense category.
func IsExpenseCategory(s string) bool {
	for _, v := range ExpenseCategories {
		if v == s {
			return true
		}
	}
	return false
}

// TaxonomyFor returns the category taxonomy for a transaction type.
func TaxonomyFor(t TransactionType) []string {
	if t == TypeRevenue {
		return RevenueSources
	}
	return ExpenseCategories
}

// AllowedImageTypes maps accepted receipt image MIME types to file extensions.
var AllowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}
