package http

import (
	"errors"

	"golang.org/x/text/language"

	"saldo/internal/core"
)

// uiText holds the page strings that are not part of core.Locale.
type uiText struct {
	Title          string
	NewTransaction string
	Description    string
	Amount         string
	Type           string
	Add            string
	Month          string
	Balance        string
	Transactions   string
	Export         string
	EmptyMonth     string

	InvalidRequest   string
	InvalidMonth     string
	UnknownMonth     string
	SaveFailed       string
	Recorded         string
	EmptyDescription string
	LongDescription  string
	InvalidType      string
}

var uiTexts = map[string]uiText{
	"pt": {
		Title:            "Saldo",
		NewTransaction:   "Nova transação",
		Description:      "Descrição",
		Amount:           "Valor",
		Type:             "Tipo",
		Add:              "Adicionar",
		Month:            "Mês",
		Balance:          "Saldo",
		Transactions:     "Transações",
		Export:           "Exportar XLSX",
		EmptyMonth:       "Nenhuma transação neste mês",
		InvalidRequest:   "Formato de requisição inválido",
		InvalidMonth:     "Mês inválido",
		UnknownMonth:     "Mês desconhecido",
		SaveFailed:       "Erro ao salvar",
		Recorded:         "Transação registrada",
		EmptyDescription: "Descrição obrigatória",
		LongDescription:  "Descrição muito longa (máx. 200 caracteres)",
		InvalidType:      "Tipo inválido",
	},
	"en": {
		Title:            "Saldo",
		NewTransaction:   "New transaction",
		Description:      "Description",
		Amount:           "Amount",
		Type:             "Type",
		Add:              "Add",
		Month:            "Month",
		Balance:          "Balance",
		Transactions:     "Transactions",
		Export:           "Export XLSX",
		EmptyMonth:       "No transactions this month",
		InvalidRequest:   "Invalid request format",
		InvalidMonth:     "Invalid month",
		UnknownMonth:     "Unknown month",
		SaveFailed:       "Could not save",
		Recorded:         "Transaction recorded",
		EmptyDescription: "Description is required",
		LongDescription:  "Description too long (max 200 characters)",
		InvalidType:      "Invalid type",
	},
	"it": {
		Title:            "Saldo",
		NewTransaction:   "Nuova transazione",
		Description:      "Descrizione",
		Amount:           "Importo",
		Type:             "Tipo",
		Add:              "Aggiungi",
		Month:            "Mese",
		Balance:          "Saldo",
		Transactions:     "Transazioni",
		Export:           "Esporta XLSX",
		EmptyMonth:       "Nessuna transazione questo mese",
		InvalidRequest:   "Formato richiesta non valido",
		InvalidMonth:     "Mese non valido",
		UnknownMonth:     "Mese sconosciuto",
		SaveFailed:       "Errore nel salvataggio",
		Recorded:         "Transazione registrata",
		EmptyDescription: "Descrizione obbligatoria",
		LongDescription:  "Descrizione troppo lunga (max 200 caratteri)",
		InvalidType:      "Tipo non valido",
	},
}

func textFor(tag language.Tag) uiText {
	base, _ := tag.Base()
	if t, ok := uiTexts[base.String()]; ok {
		return t
	}
	return uiTexts["pt"]
}

// validationMessage maps core validation errors to a user-facing message.
// ok is false for errors that are not validation failures.
func (t uiText) validationMessage(err error) (msg string, ok bool) {
	switch {
	case errors.Is(err, core.ErrEmptyDescription):
		return t.EmptyDescription, true
	case errors.Is(err, core.ErrDescriptionTooLong):
		return t.LongDescription, true
	case errors.Is(err, core.ErrInvalidType):
		return t.InvalidType, true
	case errors.Is(err, core.ErrInvalidMonthKey):
		return t.InvalidMonth, true
	}
	return "", false
}
