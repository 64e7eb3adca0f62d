package core

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Locale holds the display conventions for labels and money.
type Locale struct {
	Tag              language.Tag
	CurrencySymbol   string
	DecimalSeparator string
	IncomeLabel      string
	ExpenseLabel     string
	NoDataLabel      string

	months      [12]string
	labelFormat string
}

var locales = []Locale{
	{
		Tag:              language.BrazilianPortuguese,
		CurrencySymbol:   "R$",
		DecimalSeparator: ",",
		IncomeLabel:      "Receitas",
		ExpenseLabel:     "Despesas",
		NoDataLabel:      "Sem dados",
		months: [12]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
			"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"},
		labelFormat: "%s de %d",
	},
	{
		Tag:              language.English,
		CurrencySymbol:   "$",
		DecimalSeparator: ".",
		IncomeLabel:      "Income",
		ExpenseLabel:     "Expenses",
		NoDataLabel:      "No data",
		months: [12]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		labelFormat: "%s %d",
	},
	{
		Tag:              language.Italian,
		CurrencySymbol:   "€",
		DecimalSeparator: ",",
		IncomeLabel:      "Entrate",
		ExpenseLabel:     "Uscite",
		NoDataLabel:      "Nessun dato",
		months: [12]string{"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
			"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre"},
		labelFormat: "%s %d",
	},
}

var localeMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.Tag
	}
	return language.NewMatcher(tags)
}()

// LocaleFor picks the closest supported locale for a BCP 47 tag. Unknown or
// empty tags fall back to Brazilian Portuguese.
func LocaleFor(tag string) Locale {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return locales[0]
	}
	_, idx, conf := localeMatcher.Match(t)
	if conf == language.No {
		return locales[0]
	}
	return locales[idx]
}

// MonthLabel formats key as a localized "Month Year". Invalid keys are
// returned unchanged.
func (l Locale) MonthLabel(key MonthKey) string {
	t, err := key.Time()
	if err != nil {
		return string(key)
	}
	return fmt.Sprintf(l.labelFormat, l.months[t.Month()-1], t.Year())
}

// FormatMoney renders v with two fixed decimals, e.g. "R$ 700,00".
// NaN renders as "R$ NaN".
func (l Locale) FormatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if l.DecimalSeparator != "." {
		s = strings.Replace(s, ".", l.DecimalSeparator, 1)
	}
	return l.CurrencySymbol + " " + s
}

func (l Locale) TypeLabel(t TransactionType) string {
	if t == Income {
		return l.IncomeLabel
	}
	return l.ExpenseLabel
}
