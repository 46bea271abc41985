package classify

import (
	"strings"

	"bistrobooks/internal/domain"
)

// typeAliases map normalized type strings the models actually produce onto
// the two canonical types. Exact "revenue"/"expense" never reaches this
// table.
var typeAliases = map[string]domain.TransactionType{
	"收入":     domain.TypeRevenue,
	"營收":     domain.TypeRevenue,
	"营收":     domain.TypeRevenue,
	"income": domain.TypeRevenue,
	"支出":     domain.TypeExpense,
	"費用":     domain.TypeExpense,
	"费用":     domain.TypeExpense,
	"成本":     domain.TypeExpense,
	"cost":   domain.TypeExpense,
}

// revenueAliases map normalized category spellings onto canonical revenue
// sources. Keys must already be in normalize() form.
var revenueAliases = map[string]string{
	"現金":         domain.SourceCash,
	"现金":         domain.SourceCash,
	"信用卡":        domain.SourceCreditCard,
	"刷卡":         domain.SourceCreditCard,
	"card":       domain.SourceCreditCard,
	"creditcard": domain.SourceCreditCard,
	"uber":       domain.SourceUberEats,
	"優食":         domain.SourceUberEats,
	"panda":      domain.SourceFoodpanda,
	"熊貓":         domain.SourceFoodpanda,
	"富胖達":        domain.SourceFoodpanda,
	"團餐":         domain.SourceGroupMeal,
	"团餐":         domain.SourceGroupMeal,
	"團體訂餐":       domain.SourceGroupMeal,
	"groupmeal":  domain.SourceGroupMeal,
	"其他":         domain.SourceOther,
	"其它":         domain.SourceOther,
}

// expenseAliases map normalized category spellings onto canonical expense
// categories.
var expenseAliases = map[string]string{
	"食材":          domain.CategoryIngredients,
	"進貨":          domain.CategoryIngredients,
	"进货":          domain.CategoryIngredients,
	"原料":          domain.CategoryIngredients,
	"ingredient":  domain.CategoryIngredients,
	"房租":          domain.CategoryRent,
	"租金":          domain.CategoryRent,
	"薪資":          domain.CategoryPayroll,
	"薪水":          domain.CategoryPayroll,
	"工資":          domain.CategoryPayroll,
	"人事":          domain.CategoryPayroll,
	"salary":      domain.CategoryPayroll,
	"wages":       domain.CategoryPayroll,
	"水電":          domain.CategoryUtilities,
	"水电":          domain.CategoryUtilities,
	"水電費":         domain.CategoryUtilities,
	"瓦斯":          domain.CategoryUtilities,
	"utility":     domain.CategoryUtilities,
	"electricity": domain.CategoryUtilities,
	"其他":          domain.CategoryOther,
	"其它":          domain.CategoryOther,
}

// separatorCleaner strips the separators that vary freely between model
// outputs ("Uber Eats", "uber-eats", "uber_eats") including the fullwidth
// space CJK keyboards insert.
var separatorCleaner = strings.NewReplacer(" ", "", "-", "", "_", "", "　", "")

func normalize(s string) string {
	return separatorCleaner.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func aliasesFor(t domain.TransactionType) map[string]string {
	if t == domain.TypeRevenue {
		return revenueAliases
	}
	return expenseAliases
}

// matchesTaxonomy reports whether category resolves into the given label
// set by exact, normalized or alias match. Fuzzy matching is deliberately
// excluded: this feeds type inference, where a near-miss across taxonomies
// must stay ambiguous rather than pick a side.
func matchesTaxonomy(category string, labels []string, aliases map[string]string) bool {
	norm := normalize(category)
	if norm == "" {
		return false
	}
	for _, label := range labels {
		if norm == normalize(label) {
			return true
		}
	}
	_, ok := aliases[norm]
	return ok
}
