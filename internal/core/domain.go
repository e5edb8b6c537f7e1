package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Expense categories form a closed set; inputs are matched exactly.
const (
	CategoryFood           = "Food"
	CategoryTransportation = "Transportation"
	CategoryHousing        = "Housing"
	CategoryEntertainment  = "Entertainment"
	CategoryOther          = "Other"
)

// Currencies accepted from receipt extraction.
const (
	CurrencyVND = "vnd"
	CurrencyUSD = "usd"
	CurrencyEUR = "eur"
)

type (
	User struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		PasswordHash string `json:"-"`
	}

	// Budget is scoped to one (user, month) pair. RemainingAmount starts
	// equal to TotalAmount and only ever decreases. ThresholdWarned records
	// that the low-budget notification has already fired for this budget.
	Budget struct {
		ID              int64           `json:"id"`
		UserID          int64           `json:"userId"`
		Month           string          `json:"month"`
		TotalAmount     decimal.Decimal `json:"totalAmount"`
		RemainingAmount decimal.Decimal `json:"remainingAmount"`
		ThresholdWarned bool            `json:"-"`
	}

	// Expense is immutable after creation; there is no update or delete.
	Expense struct {
		ID          int64           `json:"id"`
		UserID      int64           `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description,omitempty"`
		ReceiptURL  string          `json:"receiptUrl,omitempty"`
		Date        time.Time       `json:"date"`
	}

	Notification struct {
		ID      int64     `json:"id"`
		UserID  int64     `json:"userId"`
		Message string    `json:"message"`
		Read    bool      `json:"read"`
		Date    time.Time `json:"date"`
	}

	// BudgetInput is the validated payload for budget creation.
	BudgetInput struct {
		TotalAmount decimal.Decimal `json:"totalAmount"`
		Month       string          `json:"month"`
	}

	// ExpenseInput is the validated payload for expense creation.
	ExpenseInput struct {
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description,omitempty"`
		ReceiptURL  string          `json:"receiptUrl,omitempty"`
		Date        time.Time       `json:"date"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// LowBudgetMessage is the fixed notification text created when an expense
// pushes a budget's remaining amount below the warning threshold.
const LowBudgetMessage = "Warning: You have less than 20% of your budget remaining"

// WarningThreshold is the remaining/total ratio below which the low-budget
// notification fires.
var WarningThreshold = decimal.NewFromFloat(0.2)

// ValidCategory reports whether s is one of the fixed expense categories.
// Matching is exact; normalization happens only during aggregation.
func ValidCategory(s string) bool {
	switch s {
	case CategoryFood, CategoryTransportation, CategoryHousing, CategoryEntertainment, CategoryOther:
		return true
	}
	return false
}

// ValidCurrency reports whether s is one of the accepted receipt currencies.
func ValidCurrency(s string) bool {
	switch s {
	case CurrencyVND, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// NormalizeCategory capitalizes the first letter and lowercases the rest,
// so "food", "FOOD" and "Food" aggregate into the same bucket.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// MonthKey formats a time as the YYYY-MM key budgets are scoped to.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// ValidMonthKey reports whether s is a well-formed YYYY-MM key.
func ValidMonthKey(s string) bool {
	_, err := time.Parse("2006-01", s)
	return err == nil
}

// PreviousMonth returns the month key immediately before the given one,
// wrapping January back into December of the prior year.
func PreviousMonth(month string) (string, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", ErrInvalidMonth
	}
	return t.AddDate(0, -1, 0).Format("2006-01"), nil
}

// MonthNumber extracts the calendar month (1-12) from a YYYY-MM key.
// Returns 0 for malformed keys.
func MonthNumber(month string) int {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return 0
	}
	return int(t.Month())
}

func (b BudgetInput) Validate() error {
	if b.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !ValidMonthKey(b.Month) {
		return ErrInvalidMonth
	}
	return nil
}

func (e ExpenseInput) Validate() error {
	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !ValidCategory(e.Category) {
		return ErrInvalidCategory
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
