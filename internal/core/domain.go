package core

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Legacy type values written by the browser version of the tracker.
const (
	legacyIncome  = "receita"
	legacyExpense = "despesa"
)

const monthKeyLayout = "2006-01"

const maxDescriptionLen = 200

type (
	TransactionType string

	// MonthKey identifies a calendar month bucket as "YYYY-MM".
	MonthKey string

	Transaction struct {
		Description string          `json:"description"`
		Amount      string          `json:"amount"`
		Type        TransactionType `json:"type"`
	}
)

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidMonthKey    = errors.New("invalid month key")
	ErrUnknownMonth       = errors.New("unknown month")
)

// ParseTransactionType accepts both the canonical and the legacy values.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Income), legacyIncome:
		return Income, nil
	case string(Expense), legacyExpense:
		return Expense, nil
	}
	return "", ErrInvalidType
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// UnmarshalJSON normalizes legacy values. Unknown values are kept as-is and
// count as expenses during aggregation.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseTransactionType(s); err == nil {
		*t = parsed
		return nil
	}
	*t = TransactionType(s)
	return nil
}

// NewTransaction builds a transaction from raw form input.
func NewTransaction(description, amount, typ string) (Transaction, error) {
	t, err := ParseTransactionType(typ)
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{
		Description: strings.TrimSpace(description),
		Amount:      strings.TrimSpace(amount),
		Type:        t,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate checks description and type. The amount is left unchecked:
// non-numeric input is carried along and shows up as NaN in totals.
func (tx Transaction) Validate() error {
	if len(strings.TrimSpace(tx.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(tx.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if !tx.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Value parses the amount as a float64. Unparsable amounts yield NaN.
func (tx Transaction) Value() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(tx.Amount), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (tx Transaction) IsIncome() bool {
	return tx.Type == Income
}

// MonthKeyOf returns the month bucket for t in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format(monthKeyLayout))
}

// ParseMonthKey validates s as "YYYY-MM".
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(monthKeyLayout) {
		return "", ErrInvalidMonthKey
	}
	if _, err := time.Parse(monthKeyLayout, s); err != nil {
		return "", ErrInvalidMonthKey
	}
	return MonthKey(s), nil
}

// Time returns midnight UTC on the first day of the month.
func (k MonthKey) Time() (time.Time, error) {
	t, err := time.Parse(monthKeyLayout, string(k))
	if err != nil {
		return time.Time{}, ErrInvalidMonthKey
	}
	return t, nil
}

func (k MonthKey) String() string {
	return string(k)
}
