// Package classify resolves validated payloads into the closed transaction
// taxonomy. Type resolution happens first and never defaults; category
// resolution degrades from exact match through aliases and fuzzy matching
// down to the flagged "other" fallback.
package classify

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"bistrobooks/internal/domain"
)

// Result is a classified payload: the resolved type, the canonical
// category label and how much the resolution is to be trusted.
type Result struct {
	Type             domain.TransactionType
	SourceOrCategory string
	Confidence       domain.Confidence
}

// Classifier resolves payloads against the taxonomies. Safe for concurrent
// use; all state is fixed at construction.
type Classifier struct {
	fuzzyThreshold float64
}

// New returns a classifier using the given Jaro-Winkler similarity
// threshold for the fuzzy category pass. A threshold <= 0 disables fuzzy
// matching entirely.
func New(fuzzyThreshold float64) *Classifier {
	return &Classifier{fuzzyThreshold: fuzzyThreshold}
}

// Classify resolves the payload's type and category.
//
// Type: exact "revenue"/"expense" (case-insensitive) wins; then the alias
// table; then inference from the category against both taxonomies. A
// category matching neither taxonomy or both yields *AmbiguousTypeError.
//
// Category: exact label match is high confidence; normalized, alias or
// fuzzy match is medium; anything else falls back to "other" at low
// confidence, the one sanctioned default in the pipeline.
func (c *Classifier) Classify(payload *domain.StructuredPayload) (*Result, error) {
	typ, ok := resolveType(payload.Type, payload.Category)
	if !ok {
		return nil, &AmbiguousTypeError{DeclaredType: payload.Type, Category: payload.Category}
	}
	label, conf := c.resolveCategory(typ, payload.Category)
	return &Result{Type: typ, SourceOrCategory: label, Confidence: conf}, nil
}

func resolveType(declared, category string) (domain.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case string(domain.TypeRevenue):
		return domain.TypeRevenue, true
	case string(domain.TypeExpense):
		return domain.TypeExpense, true
	}
	if t, ok := typeAliases[normalize(declared)]; ok {
		return t, true
	}

	revHit := matchesTaxonomy(category, domain.RevenueSources, revenueAliases)
	expHit := matchesTaxonomy(category, domain.ExpenseCategories, expenseAliases)
	switch {
	case revHit && !expHit:
		return domain.TypeRevenue, true
	case expHit && !revHit:
		return domain.TypeExpense, true
	default:
		// Matching neither taxonomy, or both ("other" lives in each), is
		// not resolvable without guessing.
		return "", false
	}
}

func (c *Classifier) resolveCategory(typ domain.TransactionType, category string) (string, domain.Confidence) {
	labels := domain.TaxonomyFor(typ)
	aliases := aliasesFor(typ)

	exact := strings.ToLower(strings.TrimSpace(category))
	for _, label := range labels {
		if exact == label {
			return label, domain.ConfidenceHigh
		}
	}

	norm := normalize(category)
	if norm != "" {
		for _, label := range labels {
			if norm == normalize(label) {
				return label, domain.ConfidenceMedium
			}
		}
		if label, ok := aliases[norm]; ok {
			return label, domain.ConfidenceMedium
		}
		if label, ok := c.fuzzyMatch(norm, labels, aliases); ok {
			return label, domain.ConfidenceMedium
		}
	}

	if typ == domain.TypeRevenue {
		return domain.SourceOther, domain.ConfidenceLow
	}
	return domain.CategoryOther, domain.ConfidenceLow
}

// fuzzyMatch scores the normalized category against every canonical label
// and alias, keeping the best hit at or above the threshold. Candidates
// are visited in a fixed order so equal scores always resolve the same
// way.
func (c *Classifier) fuzzyMatch(norm string, labels []string, aliases map[string]string) (string, bool) {
	if c.fuzzyThreshold <= 0 {
		return "", false
	}

	best := ""
	bestScore := 0.0
	consider := func(candidate, label string) {
		score := smetrics.JaroWinkler(norm, candidate, 0.7, 4)
		if score > bestScore {
			best, bestScore = label, score
		}
	}

	for _, label := range labels {
		consider(normalize(label), label)
	}
	aliasKeys := make([]string, 0, len(aliases))
	for k := range aliases {
		aliasKeys = append(aliasKeys, k)
	}
	sort.Strings(aliasKeys)
	for _, k := range aliasKeys {
		consider(k, aliases[k])
	}

	if bestScore >= c.fuzzyThreshold {
		return best, true
	}
	return "", false
}
