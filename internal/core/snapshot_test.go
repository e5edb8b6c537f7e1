package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func expense(amount float64, category string) Expense {
	return Expense{
		Amount:   decimal.NewFromFloat(amount),
		Category: category,
		Date:     time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildSnapshotFoldsCategoryCasing(t *testing.T) {
	expenses := []Expense{
		expense(10, "Food"),
		expense(5, "food"),
		expense(7, "Transportation"),
	}
	budget := &Budget{TotalAmount: decimal.NewFromInt(100)}

	snap := BuildSnapshot("2025-05", expenses, budget)

	if snap.Month != 5 {
		t.Errorf("Month = %d, want 5", snap.Month)
	}
	if !snap.TotalExpenses.Equal(decimal.NewFromInt(22)) {
		t.Errorf("TotalExpenses = %s, want 22", snap.TotalExpenses)
	}
	if !snap.Budget.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Budget = %s, want 100", snap.Budget)
	}

	if len(snap.ExpenseDetails) != 2 {
		t.Fatalf("ExpenseDetails has %d rows, want 2", len(snap.ExpenseDetails))
	}
	if snap.ExpenseDetails[0].Category != "Food" || !snap.ExpenseDetails[0].Amount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("first row = %+v, want Food 15", snap.ExpenseDetails[0])
	}
	if snap.ExpenseDetails[1].Category != "Transportation" || !snap.ExpenseDetails[1].Amount.Equal(decimal.NewFromInt(7)) {
		t.Errorf("second row = %+v, want Transportation 7", snap.ExpenseDetails[1])
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	snap := BuildSnapshot("2025-05", nil, nil)

	if !snap.TotalExpenses.IsZero() {
		t.Errorf("TotalExpenses = %s, want 0", snap.TotalExpenses)
	}
	if !snap.Budget.IsZero() {
		t.Errorf("Budget = %s, want 0", snap.Budget)
	}
	if len(snap.ExpenseDetails) != 0 {
		t.Errorf("ExpenseDetails has %d rows, want 0", len(snap.ExpenseDetails))
	}
}

func TestSnapshotRemaining(t *testing.T) {
	snap := Snapshot{
		TotalExpenses: decimal.NewFromInt(850),
		Budget:        decimal.NewFromInt(1000),
	}
	if got := snap.Remaining(); !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Remaining = %s, want 150", got)
	}
}
