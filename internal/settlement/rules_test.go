package settlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/settlement"
)

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestResolve_ExpensesSettleImmediately(t *testing.T) {
	r := settlement.NewResolver(nil)

	status, due := r.Resolve(domain.TypeExpense, domain.CategoryIngredients, mustDate(t, "2025-01-15"))
	assert.Equal(t, domain.SettlementSettled, status)
	assert.Nil(t, due)
}

func TestResolve_RevenueDefaults(t *testing.T) {
	r := settlement.NewResolver(nil)
	day := mustDate(t, "2025-01-15")

	for category, wantDue := range map[string]string{
		domain.SourceCash:       "",
		domain.SourceGroupMeal:  "",
		domain.SourceOther:      "",
		domain.SourceCreditCard: "2025-01-16",
		domain.SourceUberEats:   "2025-01-22",
		domain.SourceFoodpanda:  "2025-01-22",
	} {
		status, due := r.Resolve(domain.TypeRevenue, category, day)
		if wantDue == "" {
			assert.Equal(t, domain.SettlementSettled, status, category)
			assert.Nil(t, due, category)
		} else {
			assert.Equal(t, domain.SettlementPending, status, category)
			require.NotNil(t, due, category)
			assert.Equal(t, wantDue, due.String(), category)
		}
	}
}

func TestResolve_OverridesReplaceDefaults(t *testing.T) {
	overrides, err := settlement.ParseOverrides("credit_card=0, ubereats=10")
	require.NoError(t, err)

	r := settlement.NewResolver(overrides)
	day := mustDate(t, "2025-01-15")

	status, due := r.Resolve(domain.TypeRevenue, domain.SourceCreditCard, day)
	assert.Equal(t, domain.SettlementSettled, status)
	assert.Nil(t, due)

	status, due = r.Resolve(domain.TypeRevenue, domain.SourceUberEats, day)
	assert.Equal(t, domain.SettlementPending, status)
	require.NotNil(t, due)
	assert.Equal(t, "2025-01-25", due.String())

	// Untouched sources keep their defaults.
	status, _ = r.Resolve(domain.TypeRevenue, domain.SourceFoodpanda, day)
	assert.Equal(t, domain.SettlementPending, status)
}

func TestParseOverrides_RejectsBadInput(t *testing.T) {
	for _, s := range []string{
		"credit_card",
		"credit_card=soon",
		"credit_card=-1",
		"groceries=3",
	} {
		_, err := settlement.ParseOverrides(s)
		assert.Error(t, err, s)
	}
}

func TestParseOverrides_EmptyString(t *testing.T) {
	overrides, err := settlement.ParseOverrides("")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}
