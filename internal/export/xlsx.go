// Package export renders tracker months as an XLSX workbook: a summary sheet
// followed by one sheet per month.
package export

import (
	"fmt"
	"math"

	"dario.cat/mergo"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"

	"saldo/internal/core"
)

type headings struct {
	Summary, Month, Description, Type, Amount, Income, Expense, Balance string
}

var headingsByLanguage = map[string]headings{
	"pt": {"Resumo", "Mês", "Descrição", "Tipo", "Valor", "Receitas", "Despesas", "Saldo"},
	"en": {"Summary", "Month", "Description", "Type", "Amount", "Income", "Expenses", "Balance"},
	"it": {"Riepilogo", "Mese", "Descrizione", "Tipo", "Importo", "Entrate", "Uscite", "Saldo"},
}

func headingsFor(tag language.Tag) headings {
	base, _ := tag.Base()
	if h, ok := headingsByLanguage[base.String()]; ok {
		return h
	}
	return headingsByLanguage["pt"]
}

// MonthsXLSX exports the given months, or every month when keys is empty.
// Unknown keys are an error.
func MonthsXLSX(s core.State, loc core.Locale, keys ...core.MonthKey) ([]byte, error) {
	if len(keys) == 0 {
		keys = s.Keys()
	}
	for _, k := range keys {
		if !s.Has(k) {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownMonth, k)
		}
	}
	h := headingsFor(loc.Tag)

	xlsx := excelize.NewFile()
	defer xlsx.Close()

	_ = xlsx.SetAppProps(&excelize.AppProperties{
		Application: "saldo",
		DocSecurity: 0,
	})

	summary := xlsx.GetSheetName(xlsx.GetActiveSheetIndex())
	if err := xlsx.SetSheetName(summary, h.Summary); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	summary = h.Summary
	writeSummarySheet(xlsx, summary, s, loc, h, keys)

	for _, k := range keys {
		sheet := k.String()
		if _, err := xlsx.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		writeMonthSheet(xlsx, sheet, s.Transactions(k), loc, h)
	}

	buf, err := xlsx.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(xlsx *excelize.File, sheet string, s core.State, loc core.Locale, h headings, keys []core.MonthKey) {
	_ = xlsx.SetColWidth(sheet, "A", "A", 24)
	_ = xlsx.SetColWidth(sheet, "B", "D", 15)

	row := 1
	_ = xlsx.SetCellValue(sheet, cell('A', row), h.Month)
	_ = xlsx.SetCellValue(sheet, cell('B', row), h.Income)
	_ = xlsx.SetCellValue(sheet, cell('C', row), h.Expense)
	_ = xlsx.SetCellValue(sheet, cell('D', row), h.Balance)
	style, _ := xlsx.NewStyle(mergeStyles(defaultStyle(), fontBold(), thinBorder("bottom")))
	_ = xlsx.SetCellStyle(sheet, cell('A', row), cell('D', row), style)
	row++

	for _, k := range keys {
		txs := s.Transactions(k)
		totals := core.GroupedTotals(txs)
		var expense float64
		for typ, v := range totals {
			if typ != core.Income {
				expense += v
			}
		}
		_ = xlsx.SetCellValue(sheet, cell('A', row), loc.MonthLabel(k))
		setAmount(xlsx, sheet, cell('B', row), totals[core.Income])
		setAmount(xlsx, sheet, cell('C', row), expense)
		setAmount(xlsx, sheet, cell('D', row), core.Balance(txs))
		style, _ := xlsx.NewStyle(mergeStyles(defaultStyle(), amountFormat()))
		_ = xlsx.SetCellStyle(sheet, cell('B', row), cell('D', row), style)
		row++
	}
}

func writeMonthSheet(xlsx *excelize.File, sheet string, txs []core.Transaction, loc core.Locale, h headings) {
	_ = xlsx.SetColWidth(sheet, "A", "A", 40)
	_ = xlsx.SetColWidth(sheet, "B", "C", 15)

	row := 1
	_ = xlsx.SetCellValue(sheet, cell('A', row), h.Description)
	_ = xlsx.SetCellValue(sheet, cell('B', row), h.Type)
	_ = xlsx.SetCellValue(sheet, cell('C', row), h.Amount)
	style, _ := xlsx.NewStyle(mergeStyles(defaultStyle(), fontBold(), thinBorder("bottom")))
	_ = xlsx.SetCellStyle(sheet, cell('A', row), cell('B', row), style)
	style, _ = xlsx.NewStyle(mergeStyles(defaultStyle(), fontBold(), thinBorder("bottom"), textAlignment("right")))
	_ = xlsx.SetCellStyle(sheet, cell('C', row), cell('C', row), style)
	row++

	for _, tx := range txs {
		_ = xlsx.SetCellValue(sheet, cell('A', row), tx.Description)
		_ = xlsx.SetCellValue(sheet, cell('B', row), loc.TypeLabel(tx.Type))
		setAmount(xlsx, sheet, cell('C', row), tx.Value())
		color := expenseColor
		if tx.IsIncome() {
			color = incomeColor
		}
		style, _ := xlsx.NewStyle(mergeStyles(defaultStyle(), amountFormat(), fontColor(color)))
		_ = xlsx.SetCellStyle(sheet, cell('C', row), cell('C', row), style)
		row++
	}

	_ = xlsx.SetCellValue(sheet, cell('A', row), h.Balance)
	setAmount(xlsx, sheet, cell('C', row), core.Balance(txs))
	style, _ = xlsx.NewStyle(mergeStyles(defaultStyle(), fontBold(), amountFormat(), thickBorder("top")))
	_ = xlsx.SetCellStyle(sheet, cell('A', row), cell('C', row), style)
}

// setAmount writes NaN and infinities as text so the workbook stays valid.
func setAmount(xlsx *excelize.File, sheet, ref string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		_ = xlsx.SetCellStr(sheet, ref, fmt.Sprint(v))
		return
	}
	_ = xlsx.SetCellFloat(sheet, ref, v, -1, 64)
}

func cell(col rune, row int) string {
	return fmt.Sprintf("%c%d", col, row)
}

const (
	incomeColor  = "#2ECC71"
	expenseColor = "#E74C3C"
)

func defaultStyle() *excelize.Style {
	return &excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FFFFFF"},
			Pattern: 1,
		},
	}
}

func amountFormat() *excelize.Style {
	f := "#,##0.00"
	return &excelize.Style{CustomNumFmt: &f}
}

func fontBold() *excelize.Style {
	return &excelize.Style{Font: &excelize.Font{Bold: true}}
}

func fontColor(c string) *excelize.Style {
	return &excelize.Style{Font: &excelize.Font{Color: c}}
}

func textAlignment(a string) *excelize.Style {
	return &excelize.Style{Alignment: &excelize.Alignment{Horizontal: a}}
}

func thinBorder(where ...string) *excelize.Style {
	s := &excelize.Style{}
	for _, w := range where {
		s.Border = append(s.Border, excelize.Border{Type: w, Color: "#000000", Style: 1})
	}
	return s
}

func thickBorder(where ...string) *excelize.Style {
	s := &excelize.Style{}
	for _, w := range where {
		s.Border = append(s.Border, excelize.Border{Type: w, Color: "#000000", Style: 2})
	}
	return s
}

// mergeStyles folds ext[1:] into ext[0], later styles winning.
func mergeStyles(ext ...*excelize.Style) *excelize.Style {
	if len(ext) == 0 {
		return nil
	}
	for _, e := range ext[1:] {
		_ = mergo.Merge(ext[0], e, mergo.WithOverride)
	}
	return ext[0]
}
