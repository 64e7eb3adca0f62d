package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
)

// TransactionRecordedMessage carries a transaction as it was stored, together
// with the month bucket it went into.
type TransactionRecordedMessage struct {
	ID          string    `json:"id"`
	Month       string    `json:"month"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTransactionRecordedMessage(month core.MonthKey, tx core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		ID:          uuid.NewString(),
		Month:       month.String(),
		Description: tx.Description,
		Amount:      tx.Amount,
		Type:        string(tx.Type),
		Timestamp:   time.Now(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Transaction rebuilds the stored transaction. Legacy type values are
// normalized the same way as when reading persisted state.
func (m *TransactionRecordedMessage) Transaction() core.Transaction {
	typ := core.TransactionType(m.Type)
	if parsed, err := core.ParseTransactionType(m.Type); err == nil {
		typ = parsed
	}
	return core.Transaction{Description: m.Description, Amount: m.Amount, Type: typ}
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := core.ParseMonthKey(msg.Month); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &msg, nil
}
