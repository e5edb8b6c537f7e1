// Package services holds the application logic between the HTTP layer and
// storage: budgets, expenses, monthly snapshots, and notification fan-out.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/events"
)

// Store is the persistence surface the finance service needs. It is satisfied
// by storage.Repository; tests use an in-memory fake.
type Store interface {
	CreateBudget(ctx context.Context, userID int64, in core.BudgetInput) (core.Budget, error)
	GetBudget(ctx context.Context, userID int64, month string) (*core.Budget, error)
	ApplyExpense(ctx context.Context, userID int64, in core.ExpenseInput) (core.Expense, *core.Notification, error)
	ListExpenses(ctx context.Context, userID int64, period string) ([]core.Expense, error)
	ListNotifications(ctx context.Context, userID int64) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Publisher emits budget-warning events to the broker. Nil means eventing is
// disabled and warnings stay in-app only.
type Publisher interface {
	PublishBudgetWarning(ctx context.Context, warning *events.BudgetWarning) error
}

type Finance struct {
	store     Store
	publisher Publisher
}

func NewFinance(store Store, publisher Publisher) *Finance {
	return &Finance{store: store, publisher: publisher}
}

// CreateBudget validates and stores a monthly budget. Remaining starts equal
// to the total.
func (f *Finance) CreateBudget(ctx context.Context, userID int64, in core.BudgetInput) (core.Budget, error) {
	if err := in.Validate(); err != nil {
		return core.Budget{}, err
	}
	return f.store.CreateBudget(ctx, userID, in)
}

// Budget returns the budget for a month, or nil when none exists.
func (f *Finance) Budget(ctx context.Context, userID int64, month string) (*core.Budget, error) {
	return f.store.GetBudget(ctx, userID, month)
}

// CreateExpense validates and stores an expense, updating the matching
// month's budget in the same transaction. When the expense trips the
// low-budget warning, the notification is already persisted; the broker
// event is best effort and never fails the request.
func (f *Finance) CreateExpense(ctx context.Context, userID int64, in core.ExpenseInput) (core.Expense, *core.Notification, error) {
	in.Category = core.NormalizeCategory(in.Category)
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	if err := in.Validate(); err != nil {
		return core.Expense{}, nil, err
	}

	expense, notification, err := f.store.ApplyExpense(ctx, userID, in)
	if err != nil {
		return core.Expense{}, nil, err
	}

	if notification != nil && f.publisher != nil {
		month := core.MonthKey(expense.Date)
		warning := events.NewBudgetWarning(userID, month, notification.Message)
		if budget, berr := f.store.GetBudget(ctx, userID, month); berr == nil && budget != nil {
			warning.Remaining = budget.RemainingAmount
			warning.Total = budget.TotalAmount
		}
		if perr := f.publisher.PublishBudgetWarning(ctx, warning); perr != nil {
			slog.ErrorContext(ctx, "Failed to publish budget warning",
				"error", perr, "user_id", userID, "month", month)
		}
	}

	return expense, notification, nil
}

// ListExpenses returns the user's expenses for a period name or YYYY-MM key.
func (f *Finance) ListExpenses(ctx context.Context, userID int64, period string) ([]core.Expense, error) {
	return f.store.ListExpenses(ctx, userID, period)
}

// Snapshot aggregates a month's expenses against its budget. Storage errors
// degrade to an empty snapshot so AI features always have numbers to work
// with.
func (f *Finance) Snapshot(ctx context.Context, userID int64, month string) core.Snapshot {
	expenses, err := f.store.ListExpenses(ctx, userID, month)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list expenses for snapshot",
			"error", err, "user_id", userID, "month", month)
		expenses = nil
	}

	budget, err := f.store.GetBudget(ctx, userID, month)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get budget for snapshot",
			"error", err, "user_id", userID, "month", month)
		budget = nil
	}

	return core.BuildSnapshot(month, expenses, budget)
}

// Analysis returns the snapshots the advice generator compares: the requested
// month and the one before it.
func (f *Finance) Analysis(ctx context.Context, userID int64, month string) (current, previous core.Snapshot) {
	current = f.Snapshot(ctx, userID, month)
	prevMonth, err := core.PreviousMonth(month)
	if err != nil {
		slog.ErrorContext(ctx, "Invalid month for analysis", "error", err, "month", month)
		return current, core.Snapshot{}
	}
	previous = f.Snapshot(ctx, userID, prevMonth)
	return current, previous
}

func (f *Finance) Notifications(ctx context.Context, userID int64) ([]core.Notification, error) {
	return f.store.ListNotifications(ctx, userID)
}

func (f *Finance) MarkNotificationRead(ctx context.Context, id int64) error {
	return f.store.MarkNotificationRead(ctx, id)
}
