package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *Repository) core.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateUser(ctx, "alice", "hash2"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate CreateUser error = %v, want ErrUsernameTaken", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	if err := repo.CreateSession(ctx, "tok", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	userID, err := repo.GetSession(ctx, "tok")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if userID != user.ID {
		t.Errorf("GetSession userID = %d, want %d", userID, user.ID)
	}

	if err := repo.DeleteSession(ctx, "tok"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := repo.GetSession(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete error = %v, want ErrNotFound", err)
	}
}

func TestGetSessionExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	if err := repo.CreateSession(ctx, "old", user.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := repo.GetSession(ctx, "old"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("GetSession error = %v, want ErrSessionExpired", err)
	}
	// Expired session rows are removed on sight
	if _, err := repo.GetSession(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second GetSession error = %v, want ErrNotFound", err)
	}
}

func TestCreateBudget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	budget, err := repo.CreateBudget(ctx, user.ID, core.BudgetInput{
		TotalAmount: decimal.NewFromInt(1000),
		Month:       "2025-06",
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	if !budget.RemainingAmount.Equal(budget.TotalAmount) {
		t.Errorf("RemainingAmount = %s, want %s", budget.RemainingAmount, budget.TotalAmount)
	}

	if _, err := repo.CreateBudget(ctx, user.ID, core.BudgetInput{
		TotalAmount: decimal.NewFromInt(500),
		Month:       "2025-06",
	}); !errors.Is(err, ErrDuplicateBudget) {
		t.Errorf("duplicate CreateBudget error = %v, want ErrDuplicateBudget", err)
	}

	// Other months and users remain open
	if _, err := repo.CreateBudget(ctx, user.ID, core.BudgetInput{
		TotalAmount: decimal.NewFromInt(500),
		Month:       "2025-07",
	}); err != nil {
		t.Errorf("CreateBudget other month: %v", err)
	}
}

func TestGetBudgetMissingIsNil(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo)

	budget, err := repo.GetBudget(context.Background(), user.ID, "2025-06")
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if budget != nil {
		t.Errorf("GetBudget = %+v, want nil", budget)
	}
}

func TestApplyExpenseDecrementsBudgetAndWarnsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	if _, err := repo.CreateBudget(ctx, user.ID, core.BudgetInput{
		TotalAmount: decimal.NewFromInt(1000),
		Month:       "2025-06",
	}); err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	date := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	// 1000 -> 300: above the 20% threshold, no warning
	_, notification, err := repo.ApplyExpense(ctx, user.ID, core.ExpenseInput{
		Amount:   decimal.NewFromInt(700),
		Category: core.CategoryFood,
		Date:     date,
	})
	if err != nil {
		t.Fatalf("ApplyExpense: %v", err)
	}
	if notification != nil {
		t.Fatalf("notification = %+v, want nil at 30%% remaining", notification)
	}

	// 300 -> 150: crosses below 200, warning fires
	_, notification, err = repo.ApplyExpense(ctx, user.ID, core.ExpenseInput{
		Amount:   decimal.NewFromInt(150),
		Category: core.CategoryHousing,
		Date:     date,
	})
	if err != nil {
		t.Fatalf("ApplyExpense: %v", err)
	}
	if notification == nil {
		t.Fatal("notification = nil, want low-budget warning")
	}
	if notification.Message != core.LowBudgetMessage {
		t.Errorf("message = %q, want %q", notification.Message, core.LowBudgetMessage)
	}

	budget, err := repo.GetBudget(ctx, user.ID, "2025-06")
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if !budget.RemainingAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("RemainingAmount = %s, want 150", budget.RemainingAmount)
	}

	// Further spending stays below threshold but must not warn again
	_, notification, err = repo.ApplyExpense(ctx, user.ID, core.ExpenseInput{
		Amount:   decimal.NewFromInt(50),
		Category: core.CategoryOther,
		Date:     date,
	})
	if err != nil {
		t.Fatalf("ApplyExpense: %v", err)
	}
	if notification != nil {
		t.Errorf("notification = %+v, want nil on repeat crossing", notification)
	}

	notifications, err := repo.ListNotifications(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Errorf("ListNotifications returned %d rows, want 1", len(notifications))
	}
}

func TestApplyExpenseWithoutBudget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	expense, notification, err := repo.ApplyExpense(ctx, user.ID, core.ExpenseInput{
		Amount:   decimal.NewFromInt(25),
		Category: core.CategoryFood,
		Date:     time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyExpense: %v", err)
	}
	if notification != nil {
		t.Errorf("notification = %+v, want nil without a budget", notification)
	}
	if expense.ID == 0 {
		t.Error("expense.ID = 0, want assigned id")
	}
}

func TestListExpensesPeriods(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	now := time.Now()
	add := func(amount float64, date time.Time) {
		t.Helper()
		_, _, err := repo.ApplyExpense(ctx, user.ID, core.ExpenseInput{
			Amount:   decimal.NewFromFloat(amount),
			Category: core.CategoryFood,
			Date:     date,
		})
		if err != nil {
			t.Fatalf("ApplyExpense: %v", err)
		}
	}

	add(1, now)
	add(2, now.AddDate(0, -2, 0))
	add(3, now.AddDate(-1, 0, 0))

	all, err := repo.ListExpenses(ctx, user.ID, "all")
	if err != nil {
		t.Fatalf("ListExpenses all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all returned %d rows, want 3", len(all))
	}

	today, err := repo.ListExpenses(ctx, user.ID, "today")
	if err != nil {
		t.Fatalf("ListExpenses today: %v", err)
	}
	if len(today) != 1 {
		t.Errorf("today returned %d rows, want 1", len(today))
	}

	month, err := repo.ListExpenses(ctx, user.ID, "month")
	if err != nil {
		t.Fatalf("ListExpenses month: %v", err)
	}
	if len(month) != 1 {
		t.Errorf("month returned %d rows, want 1", len(month))
	}

	key := core.MonthKey(now.AddDate(0, -2, 0))
	byKey, err := repo.ListExpenses(ctx, user.ID, key)
	if err != nil {
		t.Fatalf("ListExpenses %s: %v", key, err)
	}
	if len(byKey) != 1 {
		t.Errorf("%s returned %d rows, want 1", key, len(byKey))
	}
}

func TestMarkNotificationReadIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := newTestUser(t, repo)

	n, err := repo.CreateNotification(ctx, user.ID, "hello")
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.MarkNotificationRead(ctx, n.ID); err != nil {
			t.Fatalf("MarkNotificationRead (pass %d): %v", i+1, err)
		}
	}

	notifications, err := repo.ListNotifications(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notifications) != 1 || !notifications[0].Read {
		t.Errorf("notifications = %+v, want one read row", notifications)
	}
}
