package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/llm"
	applog "github.com/hiendinhngoc/AI-personal-finance-coach/internal/log"
)

type createExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ReceiptURL  string          `json:"receiptUrl"`
	Date        string          `json:"date"`
}

type expenseResponse struct {
	Expense      core.Expense       `json:"expense"`
	Notification *core.Notification `json:"notification,omitempty"`
}

type uploadResponse struct {
	Expense   core.Expense    `json:"expense"`
	Extracted llm.ReceiptItem `json:"extracted"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req createExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, core.ErrInvalidDate.Error())
			return
		}
		date = parsed
	}

	expense, notification, err := s.finance.CreateExpense(r.Context(), user.ID, core.ExpenseInput{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		ReceiptURL:  req.ReceiptURL,
		Date:        date,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense recorded",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithUser(user.ID).
			WithExpense(expense.Amount.String(), expense.Category).
			ToSlice()...)

	writeJSON(w, http.StatusCreated, expenseResponse{Expense: expense, Notification: notification})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	period := chi.URLParam(r, "period")
	expenses, err := s.finance.ListExpenses(r.Context(), user.ID, period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, expenses)
}

// handleUploadReceipt accepts a multipart receipt photo, runs it through the
// vision model, and records the first extracted purchase as an expense.
// Non-USD amounts are converted before storage.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "image too large or malformed upload")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	items, err := s.ai.ExtractReceipt(r.Context(), image, r.FormValue("prompt"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no purchases found on receipt")
		return
	}

	item := items[0]
	amountUSD, err := core.ConvertToUSD(s.rates, item.Amount, item.Currency)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	expense, _, err := s.finance.CreateExpense(r.Context(), user.ID, core.ExpenseInput{
		Amount:      amountUSD,
		Category:    item.Category,
		Description: fmt.Sprintf("Receipt upload: %s", item.Category),
		Date:        time.Now(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{Expense: expense, Extracted: item})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
