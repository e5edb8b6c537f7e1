package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateBudget = errors.New("budget already exists for this month")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrSessionExpired  = errors.New("session expired")
)

// Repository is the persistence adapter for all four record types plus the
// session table backing cookie authentication.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrUsernameTaken
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("create user id: %w", err)
	}
	return core.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// --- sessions ---

func (r *Repository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession resolves a session token to a user id. Expired sessions are
// deleted on sight and reported as ErrSessionExpired.
func (r *Repository) GetSession(ctx context.Context, token string) (int64, error) {
	var userID int64
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get session: %w", err)
	}
	if time.Now().After(expiresAt) {
		_ = r.DeleteSession(ctx, token)
		return 0, ErrSessionExpired
	}
	return userID, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions prunes sessions past their expiry. Returns the number removed.
func (r *Repository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- budgets ---

// CreateBudget inserts a budget with remaining initialized to total. At most
// one budget may exist per (user, month); a second insert for the same pair
// fails with ErrDuplicateBudget.
func (r *Repository) CreateBudget(ctx context.Context, userID int64, in core.BudgetInput) (core.Budget, error) {
	total := in.TotalAmount.InexactFloat64()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, month, total_amount, remaining_amount, threshold_warned)
		 VALUES (?, ?, ?, ?, 0)`,
		userID, in.Month, total, total)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Budget{}, ErrDuplicateBudget
		}
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget id: %w", err)
	}
	return core.Budget{
		ID:              id,
		UserID:          userID,
		Month:           in.Month,
		TotalAmount:     in.TotalAmount,
		RemainingAmount: in.TotalAmount,
	}, nil
}

// GetBudget returns the budget for (user, month), or nil when none exists.
// A missing budget is not an error.
func (r *Repository) GetBudget(ctx context.Context, userID int64, month string) (*core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, total_amount, remaining_amount, threshold_warned
		 FROM budgets WHERE user_id = ? AND month = ?`, userID, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return &b, nil
}

// --- expenses ---

// ApplyExpense persists an expense and, when a budget exists for the
// expense's month, decrements its remaining amount in the same transaction.
// The low-budget notification is created exactly once per budget: on the
// expense that first pushes remaining below the warning threshold.
func (r *Repository) ApplyExpense(ctx context.Context, userID int64, in core.ExpenseInput) (core.Expense, *core.Notification, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount, category, description, receipt_url, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, in.Amount.InexactFloat64(), in.Category,
		nullString(in.Description), nullString(in.ReceiptURL), in.Date.UTC())
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("insert expense: %w", err)
	}
	expenseID, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("insert expense id: %w", err)
	}

	expense := core.Expense{
		ID:          expenseID,
		UserID:      userID,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		ReceiptURL:  in.ReceiptURL,
		Date:        in.Date,
	}

	month := core.MonthKey(in.Date)
	budget, err := scanBudget(tx.QueryRowContext(ctx,
		`SELECT id, user_id, month, total_amount, remaining_amount, threshold_warned
		 FROM budgets WHERE user_id = ? AND month = ?`, userID, month))
	if errors.Is(err, sql.ErrNoRows) {
		// No budget for this month; the expense stands alone.
		if err := tx.Commit(); err != nil {
			return core.Expense{}, nil, fmt.Errorf("commit: %w", err)
		}
		return expense, nil, nil
	}
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("get budget for expense: %w", err)
	}

	newRemaining := budget.RemainingAmount.Sub(in.Amount)
	threshold := budget.TotalAmount.Mul(core.WarningThreshold)
	warn := newRemaining.LessThan(threshold) && !budget.ThresholdWarned

	if _, err := tx.ExecContext(ctx,
		`UPDATE budgets SET remaining_amount = ?, threshold_warned = ? WHERE id = ?`,
		newRemaining.InexactFloat64(), budget.ThresholdWarned || warn, budget.ID); err != nil {
		return core.Expense{}, nil, fmt.Errorf("update budget: %w", err)
	}

	var notification *core.Notification
	if warn {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (user_id, message, read, date) VALUES (?, ?, 0, ?)`,
			userID, core.LowBudgetMessage, now)
		if err != nil {
			return core.Expense{}, nil, fmt.Errorf("insert notification: %w", err)
		}
		nid, err := res.LastInsertId()
		if err != nil {
			return core.Expense{}, nil, fmt.Errorf("insert notification id: %w", err)
		}
		notification = &core.Notification{
			ID:      nid,
			UserID:  userID,
			Message: core.LowBudgetMessage,
			Date:    now,
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Expense applied",
		"expense_id", expenseID,
		"user_id", userID,
		"category", in.Category,
		"month", month,
		"notified", notification != nil)

	return expense, notification, nil
}

// ListExpenses returns the user's expenses for a period: one of today, week
// (starting Sunday), month, all, or an explicit YYYY-MM key. Unknown period
// strings fall back to the current month, mirroring the dashboard behavior.
func (r *Repository) ListExpenses(ctx context.Context, userID int64, period string) ([]core.Expense, error) {
	query := `SELECT id, user_id, amount, category, description, receipt_url, date
	          FROM expenses WHERE user_id = ?`
	args := []any{userID}

	if period != "all" {
		start, end := periodRange(period, time.Now())
		query += ` AND date >= ? AND date <= ?`
		args = append(args, start.UTC(), end.UTC())
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e           core.Expense
			amount      float64
			description sql.NullString
			receiptURL  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Category, &description, &receiptURL, &e.Date); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Amount = decimal.NewFromFloat(amount)
		e.Description = description.String
		e.ReceiptURL = receiptURL.String
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// periodRange resolves a period name to an inclusive [start, end] window.
func periodRange(period string, now time.Time) (time.Time, time.Time) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	switch period {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), endOfDay
	case "week":
		start := now.AddDate(0, 0, -int(now.Weekday()))
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location()), endOfDay
	case "month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), endOfDay
	}

	if t, err := time.Parse("2006-01", period); err == nil {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0).Add(-time.Second)
	}

	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), endOfDay
}

// --- notifications ---

func (r *Repository) CreateNotification(ctx context.Context, userID int64, message string) (core.Notification, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, message, read, date) VALUES (?, ?, 0, ?)`,
		userID, message, now)
	if err != nil {
		return core.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Notification{}, fmt.Errorf("create notification id: %w", err)
	}
	return core.Notification{ID: id, UserID: userID, Message: message, Date: now}, nil
}

func (r *Repository) ListNotifications(ctx context.Context, userID int64) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, message, read, date FROM notifications
		 WHERE user_id = ? ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []core.Notification{}
	for rows.Next() {
		var n core.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.Date); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead flips unread to read. Marking an already-read
// notification again is a no-op, not an error.
func (r *Repository) MarkNotificationRead(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// --- helpers ---

func scanBudget(row *sql.Row) (core.Budget, error) {
	var (
		b               core.Budget
		total, remaining float64
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Month, &total, &remaining, &b.ThresholdWarned); err != nil {
		return core.Budget{}, err
	}
	b.TotalAmount = decimal.NewFromFloat(total)
	b.RemainingAmount = decimal.NewFromFloat(remaining)
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
