package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

// handleAnalysis generates financial advice by comparing the requested month
// with the one before it. Model failures degrade inside the gateway, so this
// endpoint never 500s on provider errors.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	month := chi.URLParam(r, "month")
	if !core.ValidMonthKey(month) {
		writeError(w, http.StatusBadRequest, core.ErrInvalidMonth.Error())
		return
	}

	current, previous := s.finance.Analysis(r.Context(), user.ID, month)
	advice, err := s.ai.GenerateAdvice(r.Context(), current, previous)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, advice)
}

type chatRequest struct {
	Message  string          `json:"message"`
	ThreadID json.RawMessage `json:"threadId"`
}

type chatResponse struct {
	Message string `json:"message"`
}

// threadIDString renders the thread id as text whatever scalar the client
// sent. The id is opaque, so numbers, strings, and anything else are all
// acceptable.
func threadIDString(raw json.RawMessage) string {
	trimmed := string(bytes.TrimSpace(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

// handleChat answers a question grounded in the current month's snapshot.
// Thread ids are scoped per user so one user cannot read another's history.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	threadID := threadIDString(req.ThreadID)
	if threadID == "" {
		threadID = "default"
	}
	key := fmt.Sprintf("%d:%s", user.ID, threadID)

	snap := s.finance.Snapshot(r.Context(), user.ID, core.MonthKey(time.Now()))
	answer, err := s.ai.AnswerQuestion(r.Context(), snap, key, req.Message)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Message: answer})
}

type testAIRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

type testAIResponse struct {
	Response any `json:"response"`
}

// sampleAdviceSnapshot is the fixed month used by the diagnostics endpoint
// when no image is supplied, so the advice pipeline can be exercised without
// real data.
func sampleAdviceSnapshot() core.Snapshot {
	return core.Snapshot{
		Month:         1,
		Budget:        decimal.NewFromInt(10000000),
		TotalExpenses: decimal.NewFromInt(13000000),
		ExpenseDetails: []core.CategoryAmount{
			{Category: "Food", Amount: decimal.NewFromInt(3000000)},
			{Category: "Education", Amount: decimal.NewFromInt(7000000)},
			{Category: "Utility", Amount: decimal.NewFromInt(3000000)},
		},
	}
}

// handleTestAI is a diagnostics endpoint. With an image it runs the vision
// extraction pipeline; with only a prompt it generates advice over a fixed
// sample month. Provider errors surface as 500s here on purpose so operators
// can see them.
func (s *Server) handleTestAI(w http.ResponseWriter, r *http.Request) {
	var req testAIRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" && req.Image == "" {
		writeError(w, http.StatusBadRequest, "prompt or image is required")
		return
	}

	if req.Image != "" {
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image must be base64 encoded")
			return
		}

		items, err := s.ai.ExtractReceipt(r.Context(), image, req.Prompt)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, testAIResponse{Response: items})
		return
	}

	advice, err := s.ai.GenerateAdvice(r.Context(), sampleAdviceSnapshot(), core.Snapshot{})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testAIResponse{Response: advice})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	report, err := s.ai.Weather(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
