// Package review flags completed records for human attention. Operators
// express conditions as CEL predicates over the record fields; anything
// that matches, plus every low-confidence classification, lands in the
// review queue.
package review

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/cel-go/cel"

	"bistrobooks/internal/domain"
)

// Rule is a named CEL predicate over a completed transaction record.
type Rule struct {
	Name       string
	Expression string
}

// ParseRules parses a "name=expression" list separated by semicolons,
// e.g. "large_amount=amount >= 100000.0;fallback_category=category == 'other'".
func ParseRules(s string) ([]Rule, error) {
	var rules []Rule
	seen := make(map[string]bool)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, expr, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		expr = strings.TrimSpace(expr)
		if !ok || name == "" || expr == "" {
			return nil, fmt.Errorf("review rule %q: want name=expression", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("review rule %q: duplicate name", name)
		}
		seen[name] = true
		rules = append(rules, Rule{Name: name, Expression: expr})
	}
	return rules, nil
}

type compiledRule struct {
	name string
	prog cel.Program
}

// Engine evaluates review rules against completed records. All rules
// compile at construction so a broken expression fails startup, not a
// request. Evaluation is read-only and safe for concurrent use.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the given rules against the record schema. Amounts
// are CEL doubles, so numeric literals in expressions need a decimal
// point ("amount >= 100000.0").
func NewEngine(rules []Rule) (*Engine, error) {
	// The CEL standard library reserves `type` as a root-scope identifier,
	// so it cannot be declared as a bare variable. Declaring it under a
	// container keeps the rule language unchanged: an expression's `type`
	// resolves to the qualified `rules.type` declaration.
	env, err := cel.NewEnv(
		cel.Container("rules"),
		cel.Variable("rules.type", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("confidence", cel.StringType),
		cel.Variable("modality", cel.StringType),
		cel.Variable("note", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	e := &Engine{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("review rule %s: compile error: %w", r.Name, issues.Err())
		}
		prog, err := env.Program(ast,
			cel.EvalOptions(cel.OptTrackState),
			cel.CostLimit(1000000),
		)
		if err != nil {
			return nil, fmt.Errorf("review rule %s: program creation error: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{name: r.Name, prog: prog})
	}
	return e, nil
}

// Evaluate returns the names of the rules the record trips, in rule
// order. A rule that errors at evaluation is logged and skipped; one bad
// rule must not block the others.
func (e *Engine) Evaluate(rec *domain.TransactionRecord) []string {
	facts := map[string]any{
		"rules.type": string(rec.Type),
		"category":   rec.SourceOrCategory,
		"amount":     rec.Amount,
		"confidence": string(rec.Confidence),
		"modality":   string(rec.Modality),
		"note":       rec.Note,
	}

	var matched []string
	for _, r := range e.rules {
		out, _, err := r.prog.Eval(facts)
		if err != nil {
			log.Printf("review.Engine: rule %s failed: %v", r.name, err)
			continue
		}
		if hit, ok := out.Value().(bool); ok && hit {
			matched = append(matched, r.name)
		}
	}
	return matched
}
