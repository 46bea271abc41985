// Package extract turns raw model output into validated transaction
// payloads. Decoding is tolerant (one bounded repair pass over the text),
// validation is strict: anything that survives carries a positive amount
// and enough of a type/category signal for the classifier to work with.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bistrobooks/internal/domain"
)

// rawPayload is the tolerant decode target for model output. Models are
// prompted for the "category" field name, but output following the public
// record shape ("source_or_category") is accepted too, as is the
// {"transactions":[...]} wrapper some models insist on producing.
type rawPayload struct {
	Type             string          `json:"type"`
	Category         string          `json:"category"`
	SourceOrCategory string          `json:"source_or_category"`
	Amount           json.RawMessage `json:"amount"`
	Date             string          `json:"date"`
	Note             string          `json:"note"`
	Transactions     []rawPayload    `json:"transactions"`
}

// Parse decodes raw model output into a StructuredPayload. The raw text is
// decoded as-is first; if that fails, the repair pass runs and decoding is
// retried exactly once. Output that still does not decode comes back as a
// *MalformedError (regeneration may help); output that decodes but breaks
// a payload rule comes back as a *SchemaViolationError (it will not).
func Parse(raw string, modality domain.Modality) (*domain.StructuredPayload, error) {
	p, err := decode(raw)
	if err != nil {
		p, err = decode(repair(raw))
		if err != nil {
			return nil, NewMalformedError(modality, raw, err)
		}
	}
	return validate(p)
}

func decode(s string) (*rawPayload, error) {
	var p rawPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func validate(p *rawPayload) (*domain.StructuredPayload, error) {
	if p.Transactions != nil {
		if len(p.Transactions) == 0 {
			return nil, NewSchemaViolationError("transactions", "wrapper holds no transactions")
		}
		p = &p.Transactions[0]
	}

	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = strings.TrimSpace(p.SourceOrCategory)
	}
	typ := strings.TrimSpace(p.Type)
	if typ == "" && category == "" {
		return nil, NewSchemaViolationError("type", "neither type nor category present")
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, NewSchemaViolationError("amount", err.Error())
	}
	if amount <= 0 {
		return nil, NewSchemaViolationError("amount", fmt.Sprintf("must be positive, got %v", amount))
	}

	date := strings.TrimSpace(p.Date)
	if date != "" {
		d, err := domain.ParseDate(date)
		if err != nil {
			return nil, NewSchemaViolationError("date", fmt.Sprintf("not a calendar date: %q", date))
		}
		date = d.String()
	}

	return &domain.StructuredPayload{
		Type:     typ,
		Category: category,
		Amount:   amount,
		Date:     date,
		Note:     strings.TrimSpace(p.Note),
	}, nil
}

// amountCleaner drops the currency dressing models put on numeric strings.
// "NT$" must run before "$" so the prefix is removed whole.
var amountCleaner = strings.NewReplacer("NT$", "", "$", "", ",", "", "元", "")

func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("required field is missing")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("neither a number nor a numeric string: %s", truncate(string(raw), 80))
	}
	s = strings.TrimSpace(amountCleaner.Replace(s))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a numeric string: %q", truncate(s, 80))
	}
	return n, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
