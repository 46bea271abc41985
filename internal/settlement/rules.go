// Package settlement decides when a booked transaction's money actually
// moves. Expenses are paid on the spot; revenue sources settle after a
// per-source delay: card acquirers pay out next day, delivery platforms
// batch weekly, cash is immediate.
package settlement

import (
	"fmt"
	"strconv"
	"strings"

	"bistrobooks/internal/domain"
)

// DefaultDelays returns the built-in revenue settlement delays in days.
func DefaultDelays() map[string]int {
	return map[string]int{
		domain.SourceCash:       0,
		domain.SourceCreditCard: 1,
		domain.SourceUberEats:   7,
		domain.SourceFoodpanda:  7,
		domain.SourceGroupMeal:  0,
		domain.SourceOther:      0,
	}
}

// ParseOverrides parses a "category=days" comma-separated list, e.g.
// "credit_card=2,ubereats=10". Unknown categories are rejected so a typo
// in configuration fails startup instead of silently keeping the default.
func ParseOverrides(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("settlement override %q: want category=days", entry)
		}
		key = strings.TrimSpace(key)
		if !domain.IsRevenueSource(key) {
			return nil, fmt.Errorf("settlement override %q: unknown revenue source %q", entry, key)
		}
		days, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || days < 0 {
			return nil, fmt.Errorf("settlement override %q: days must be a non-negative integer", entry)
		}
		out[key] = days
	}
	return out, nil
}

// Resolver maps a classified transaction onto its settlement terms.
// Safe for concurrent use.
type Resolver struct {
	delays map[string]int
}

// NewResolver builds a resolver from the default delays with overrides
// applied on top.
func NewResolver(overrides map[string]int) *Resolver {
	delays := DefaultDelays()
	for k, v := range overrides {
		delays[k] = v
	}
	return &Resolver{delays: delays}
}

// Resolve returns the settlement status for a transaction and, when the
// money is still outstanding, the date it is expected to arrive.
func (r *Resolver) Resolve(typ domain.TransactionType, category string, txnDate domain.Date) (domain.SettlementStatus, *domain.Date) {
	if typ == domain.TypeExpense {
		return domain.SettlementSettled, nil
	}
	delay := r.delays[category]
	if delay <= 0 {
		return domain.SettlementSettled, nil
	}
	due := txnDate.AddDays(delay)
	return domain.SettlementPending, &due
}
