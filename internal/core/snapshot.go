// Package core holds the domain types shared across storage, services and
// the LLM gateway, plus the snapshot aggregation they all consume.
package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

type (
	// CategoryAmount is one row of a snapshot's per-category breakdown.
	CategoryAmount struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// Snapshot is the derived financial picture for one month. It is never
	// persisted; it is recomputed on demand from expense and budget rows and
	// handed to the LLM gateway as grounding context.
	Snapshot struct {
		Month          int              `json:"month"`
		TotalExpenses  decimal.Decimal  `json:"totalExpenses"`
		ExpenseDetails []CategoryAmount `json:"expenseDetails"`
		Budget         decimal.Decimal  `json:"budget"`
	}
)

// BuildSnapshot folds raw expense rows into per-category totals and a grand
// total, paired with the budget's total amount (zero when no budget exists).
// Category names are normalized before summing, so casing variants of the
// same category land in one bucket. The breakdown is sorted by category name
// for deterministic output. Zero expenses and a missing budget are valid
// inputs, not errors.
func BuildSnapshot(month string, expenses []Expense, budget *Budget) Snapshot {
	byCategory := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, e := range expenses {
		cat := NormalizeCategory(e.Category)
		byCategory[cat] = byCategory[cat].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	details := make([]CategoryAmount, 0, len(byCategory))
	for cat, amount := range byCategory {
		details = append(details, CategoryAmount{Category: cat, Amount: amount})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Category < details[j].Category })

	snap := Snapshot{
		Month:          MonthNumber(month),
		TotalExpenses:  total,
		ExpenseDetails: details,
	}
	if budget != nil {
		snap.Budget = budget.TotalAmount
	}
	return snap
}

// Remaining returns the budget minus total expenses for this snapshot.
func (s Snapshot) Remaining() decimal.Decimal {
	return s.Budget.Sub(s.TotalExpenses)
}
