package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetWarning is published when an expense pushes a budget's remaining
// amount below the warning threshold. Consumers (the notification worker)
// use it to deliver the alert out-of-band; the in-app notification row is
// written synchronously with the expense.
type BudgetWarning struct {
	UserID    int64           `json:"user_id"`
	Month     string          `json:"month"`
	Remaining decimal.Decimal `json:"remaining"`
	Total     decimal.Decimal `json:"total"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewBudgetWarning(userID int64, month, message string) *BudgetWarning {
	return &BudgetWarning{
		UserID:    userID,
		Month:     month,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (w *BudgetWarning) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

// BudgetWarningFromJSON creates an event from JSON bytes
func BudgetWarningFromJSON(data []byte) (*BudgetWarning, error) {
	var w BudgetWarning
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
