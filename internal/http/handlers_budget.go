package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

type createBudgetRequest struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Month       string          `json:"month"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req createBudgetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	budget, err := s.finance.CreateBudget(r.Context(), user.ID, core.BudgetInput{
		TotalAmount: req.TotalAmount,
		Month:       req.Month,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, budget)
}

// handleGetBudget returns the month's budget, or a JSON null body when none
// has been created yet. A missing budget is not an error.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	month := chi.URLParam(r, "month")
	if !core.ValidMonthKey(month) {
		writeError(w, http.StatusBadRequest, core.ErrInvalidMonth.Error())
		return
	}

	budget, err := s.finance.Budget(r.Context(), user.ID, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, budget)
}
