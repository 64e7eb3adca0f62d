package core

import (
	"math"
	"strconv"
)

const (
	incomeColor  = "#2ecc71"
	expenseColor = "#e74c3c"
)

// Number is a float64 that encodes NaN and infinities as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// Chart is the input for a doughnut chart, one slice entry per type.
type Chart struct {
	Labels []string          `json:"labels"`
	Values []Number          `json:"values"`
	Colors []string          `json:"colors"`
	Types  []TransactionType `json:"types"`
}

// TransactionRow is a transaction prepared for display.
type TransactionRow struct {
	Description     string          `json:"description"`
	Amount          Number          `json:"amount"`
	FormattedAmount string          `json:"formatted_amount"`
	Type            TransactionType `json:"type"`
	Class           string          `json:"class"`
}

// MonthView is everything a presenter needs to render one month.
type MonthView struct {
	Key              MonthKey         `json:"key"`
	Label            string           `json:"label"`
	Balance          Number           `json:"balance"`
	FormattedBalance string           `json:"formatted_balance"`
	Transactions     []TransactionRow `json:"transactions"`
	Chart            Chart            `json:"chart"`
}

// Balance is the sum of income amounts minus the sum of expense amounts.
func Balance(txs []Transaction) float64 {
	var total float64
	for _, tx := range txs {
		if tx.IsIncome() {
			total += tx.Value()
		} else {
			total -= tx.Value()
		}
	}
	return total
}

// GroupedTotals sums amounts per transaction type. Only types that occur are
// present in the result.
func GroupedTotals(txs []Transaction) map[TransactionType]float64 {
	out := make(map[TransactionType]float64)
	for _, tx := range txs {
		out[tx.Type] += tx.Value()
	}
	return out
}

// BuildChart orders entries by first occurrence of each type.
func BuildChart(txs []Transaction, loc Locale) Chart {
	totals := GroupedTotals(txs)
	chart := Chart{
		Labels: []string{},
		Values: []Number{},
		Colors: []string{},
		Types:  []TransactionType{},
	}
	seen := make(map[TransactionType]bool, len(totals))
	for _, tx := range txs {
		if seen[tx.Type] {
			continue
		}
		seen[tx.Type] = true
		chart.Types = append(chart.Types, tx.Type)
		chart.Labels = append(chart.Labels, loc.TypeLabel(tx.Type))
		chart.Values = append(chart.Values, Number(totals[tx.Type]))
		if tx.IsIncome() {
			chart.Colors = append(chart.Colors, incomeColor)
		} else {
			chart.Colors = append(chart.Colors, expenseColor)
		}
	}
	return chart
}

// BuildMonthView derives balance, rows and chart for key. Unknown keys give
// an empty view.
func BuildMonthView(s State, key MonthKey, loc Locale) MonthView {
	txs := s.Transactions(key)
	balance := Balance(txs)
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		class := "expense"
		if tx.IsIncome() {
			class = "income"
		}
		v := tx.Value()
		rows = append(rows, TransactionRow{
			Description:     tx.Description,
			Amount:          Number(v),
			FormattedAmount: loc.FormatMoney(v),
			Type:            tx.Type,
			Class:           class,
		})
	}
	return MonthView{
		Key:              key,
		Label:            loc.MonthLabel(key),
		Balance:          Number(balance),
		FormattedBalance: loc.FormatMoney(balance),
		Transactions:     rows,
		Chart:            BuildChart(txs, loc),
	}
}
