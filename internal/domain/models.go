package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component. It marshals as
// "YYYY-MM-DD" on the wire and maps to a SQL DATE column.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" and the slash variant "2006/01/02".
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{dateLayout, "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Time.AddDate(0, 0, n))
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", "YYYY/MM/DD", null, and "".
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer for SQL DATE columns.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// StructuredPayload is the decoded-but-unclassified intermediate between
// parsing and classification. Fields hold what the model emitted after
// schema validation: Amount is already known to be strictly positive, Date
// is either empty or a valid calendar date string.
type StructuredPayload struct {
	Type     string
	Category string
	Amount   float64
	Date     string
	Note     string
}

// TransactionRecord is the canonical output unit of the pipeline.
//
// Wire contract: the json names of Type, SourceOrCategory, Amount, Date and
// Confidence are public and must not change. RawModelOutput is captured once
// and never rewritten by repair steps.
type TransactionRecord struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Type             TransactionType  `db:"type" json:"type"`
	SourceOrCategory string           `db:"source_or_category" json:"source_or_category"`
	Amount           float64          `db:"amount" json:"amount"`
	Currency         string           `db:"currency" json:"currency"`
	Date             Date             `db:"date" json:"date"`
	Confidence       Confidence       `db:"confidence" json:"confidence"`
	Modality         Modality         `db:"modality" json:"modality"`
	Note             string           `db:"note" json:"note,omitempty"`
	RawModelOutput   string           `db:"raw_model_output" json:"raw_model_output"`
	ModelUsed        string           `db:"model_used" json:"model_used"`
	LatencyMS        int64            `db:"latency_ms" json:"latency_ms"`
	NeedsReview      bool             `db:"needs_review" json:"needs_review"`
	ReviewReasons    string           `db:"review_reasons" json:"review_reasons,omitempty"`
	SettlementStatus SettlementStatus `db:"settlement_status" json:"settlement_status"`
	SettlesAt        *Date            `db:"settles_at" json:"settles_at,omitempty"`
	ReceiptKey       string           `db:"receipt_key" json:"-"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// DailyDigest summarizes one calendar day of the ledger for the operator email.
type DailyDigest struct {
	Day          Date
	RevenueTotal float64
	ExpenseTotal float64
	Count        int
	NeedsReview  int
	ByCategory   map[string]float64
	Currency     string
}
