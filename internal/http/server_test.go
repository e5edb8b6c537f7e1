package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/llm"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/storage"
)

type fakeAuth struct {
	user       core.User
	authorized bool
}

func (f *fakeAuth) Register(_ context.Context, username, _ string) (core.User, string, error) {
	if username == "taken" {
		return core.User{}, "", auth.ErrUsernameTaken
	}
	if username == "" {
		return core.User{}, "", auth.ErrInvalidInput
	}
	return core.User{ID: 1, Username: username}, "token-1", nil
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (core.User, string, error) {
	if username != "alice" || password != "pass" {
		return core.User{}, "", auth.ErrInvalidCredentials
	}
	return core.User{ID: 1, Username: "alice"}, "token-1", nil
}

func (f *fakeAuth) Logout(context.Context, string) error { return nil }

func (f *fakeAuth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), f.user)))
	})
}

func (f *fakeAuth) SessionTTL() time.Duration { return time.Hour }

type fakeFinance struct {
	budget        *core.Budget
	budgetErr     error
	expense       core.Expense
	expenseIn     core.ExpenseInput
	notification  *core.Notification
	expenseErr    error
	expenses      []core.Expense
	notifications []core.Notification
	readIDs       []int64
	snapshot      core.Snapshot
}

func (f *fakeFinance) CreateBudget(_ context.Context, userID int64, in core.BudgetInput) (core.Budget, error) {
	if err := in.Validate(); err != nil {
		return core.Budget{}, err
	}
	if f.budgetErr != nil {
		return core.Budget{}, f.budgetErr
	}
	return core.Budget{ID: 1, UserID: userID, Month: in.Month, TotalAmount: in.TotalAmount, RemainingAmount: in.TotalAmount}, nil
}

func (f *fakeFinance) Budget(context.Context, int64, string) (*core.Budget, error) {
	return f.budget, f.budgetErr
}

func (f *fakeFinance) CreateExpense(_ context.Context, _ int64, in core.ExpenseInput) (core.Expense, *core.Notification, error) {
	f.expenseIn = in
	if f.expenseErr != nil {
		return core.Expense{}, nil, f.expenseErr
	}
	return f.expense, f.notification, nil
}

func (f *fakeFinance) ListExpenses(context.Context, int64, string) ([]core.Expense, error) {
	return f.expenses, nil
}

func (f *fakeFinance) Snapshot(context.Context, int64, string) core.Snapshot {
	return f.snapshot
}

func (f *fakeFinance) Analysis(context.Context, int64, string) (core.Snapshot, core.Snapshot) {
	return f.snapshot, core.Snapshot{}
}

func (f *fakeFinance) Notifications(context.Context, int64) ([]core.Notification, error) {
	return f.notifications, nil
}

func (f *fakeFinance) MarkNotificationRead(_ context.Context, id int64) error {
	f.readIDs = append(f.readIDs, id)
	return nil
}

type fakeAI struct {
	items      []llm.ReceiptItem
	itemsErr   error
	advice     llm.Advice
	adviceSnap core.Snapshot
	answer     string
	answerErr  error
	threadID   string
}

func (f *fakeAI) ExtractReceipt(context.Context, []byte, string) ([]llm.ReceiptItem, error) {
	return f.items, f.itemsErr
}

func (f *fakeAI) GenerateAdvice(_ context.Context, current, _ core.Snapshot) (llm.Advice, error) {
	f.adviceSnap = current
	return f.advice, nil
}

func (f *fakeAI) AnswerQuestion(_ context.Context, _ core.Snapshot, threadID, _ string) (string, error) {
	f.threadID = threadID
	return f.answer, f.answerErr
}

func (f *fakeAI) Weather(context.Context) (llm.WeatherReport, error) {
	return llm.WeatherReport{}, errors.New("provider unavailable")
}

func newTestServer(t *testing.T, finance *fakeFinance, ai *fakeAI) (*Server, *fakeAuth) {
	t.Helper()
	authSvc := &fakeAuth{user: core.User{ID: 1, Username: "alice"}, authorized: true}
	srv := NewServer(Options{
		Addr:    ":0",
		Auth:    authSvc,
		Finance: finance,
		AI:      ai,
		Rates:   core.NewFixedRates(25000, 0.92),
	})
	return srv, authSvc
}

func doJSON(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestUnauthenticatedRequestsGet401(t *testing.T) {
	srv, authSvc := newTestServer(t, &fakeFinance{}, &fakeAI{})
	authSvc.authorized = false

	for _, path := range []string{"/api/user", "/api/budget/2025-06", "/api/notifications"} {
		rec := doJSON(srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, rec.Code)
		}
	}
	if rec := doJSON(srv, http.MethodPost, "/api/expenses", map[string]any{}); rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/expenses = %d, want 401", rec.Code)
	}
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/register", map[string]string{"username": "bob", "password": "pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != auth.SessionCookie || cookies[0].Value != "token-1" {
		t.Errorf("cookies = %+v, want session cookie", cookies)
	}
}

func TestRegisterConflict(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/register", map[string]string{"username": "taken", "password": "pw"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	if rec := doJSON(srv, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "pass"}); rec.Code != http.StatusOK {
		t.Errorf("valid login = %d, want 200", rec.Code)
	}
	if rec := doJSON(srv, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "nope"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d, want 401", rec.Code)
	}
}

func TestCreateBudget(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/budget", map[string]any{"totalAmount": 1000, "month": "2025-06"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var budget core.Budget
	if err := json.Unmarshal(rec.Body.Bytes(), &budget); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !budget.RemainingAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("remainingAmount = %s, want 1000", budget.RemainingAmount)
	}
}

func TestCreateBudgetValidationAndConflict(t *testing.T) {
	finance := &fakeFinance{}
	srv, _ := newTestServer(t, finance, &fakeAI{})

	if rec := doJSON(srv, http.MethodPost, "/api/budget", map[string]any{"totalAmount": -5, "month": "2025-06"}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount = %d, want 400", rec.Code)
	}
	if rec := doJSON(srv, http.MethodPost, "/api/budget", map[string]any{"totalAmount": 100, "month": "junk"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month = %d, want 400", rec.Code)
	}

	finance.budgetErr = storage.ErrDuplicateBudget
	if rec := doJSON(srv, http.MethodPost, "/api/budget", map[string]any{"totalAmount": 100, "month": "2025-06"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", rec.Code)
	}
}

func TestGetBudgetMissingIsNull(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodGet, "/api/budget/2025-06", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "null" {
		t.Errorf("body = %q, want null", got)
	}

	if rec := doJSON(srv, http.MethodGet, "/api/budget/june", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month = %d, want 400", rec.Code)
	}
}

func TestCreateExpenseReturnsNotification(t *testing.T) {
	finance := &fakeFinance{
		expense: core.Expense{ID: 1, UserID: 1, Amount: decimal.NewFromInt(850), Category: "Food"},
		notification: &core.Notification{
			ID: 1, UserID: 1, Message: core.LowBudgetMessage,
		},
	}
	srv, _ := newTestServer(t, finance, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/expenses", map[string]any{
		"amount": 850, "category": "Food", "date": "2025-06-10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Expense      core.Expense       `json:"expense"`
		Notification *core.Notification `json:"notification"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Notification == nil || resp.Notification.Message != core.LowBudgetMessage {
		t.Errorf("notification = %+v, want low-budget warning", resp.Notification)
	}
	if !finance.expenseIn.Date.Equal(time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed date = %v", finance.expenseIn.Date)
	}
}

func TestCreateExpenseBadDate(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/expenses", map[string]any{
		"amount": 10, "category": "Food", "date": "yesterday",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadReceiptConvertsCurrency(t *testing.T) {
	finance := &fakeFinance{expense: core.Expense{ID: 2}}
	ai := &fakeAI{items: []llm.ReceiptItem{
		{Amount: decimal.NewFromInt(50000), Currency: "vnd", Category: "Food"},
		{Amount: decimal.NewFromInt(10), Currency: "usd", Category: "Other"},
	}}
	srv, _ := newTestServer(t, finance, ai)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "receipt.jpg")
	_, _ = fw.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	// 50000 VND at 25000/USD: only the first item is recorded
	if !finance.expenseIn.Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("amount = %s, want 2", finance.expenseIn.Amount)
	}
	if finance.expenseIn.Category != "Food" {
		t.Errorf("category = %q, want Food", finance.expenseIn.Category)
	}
	if finance.expenseIn.Description != "Receipt upload: Food" {
		t.Errorf("description = %q", finance.expenseIn.Description)
	}

	var resp struct {
		Expense   core.Expense    `json:"expense"`
		Extracted llm.ReceiptItem `json:"extracted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Expense.ID != 2 {
		t.Errorf("expense id = %d, want 2", resp.Expense.ID)
	}
	if resp.Extracted.Currency != "vnd" || !resp.Extracted.Amount.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("extracted = %+v, want the original vnd item", resp.Extracted)
	}
}

func TestUploadReceiptRequiresImage(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("prompt", "extract this")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListNotificationsAndMarkRead(t *testing.T) {
	finance := &fakeFinance{notifications: []core.Notification{
		{ID: 1, UserID: 1, Message: core.LowBudgetMessage},
	}}
	srv, _ := newTestServer(t, finance, &fakeAI{})

	rec := doJSON(srv, http.MethodGet, "/api/notifications", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	if rec := doJSON(srv, http.MethodPost, "/api/notifications/1/read", nil); rec.Code != http.StatusOK {
		t.Errorf("mark read status = %d, want 200", rec.Code)
	}
	if rec := doJSON(srv, http.MethodPost, "/api/notifications/abc/read", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
	if len(finance.readIDs) != 1 || finance.readIDs[0] != 1 {
		t.Errorf("readIDs = %v, want [1]", finance.readIDs)
	}
}

func TestAnalysis(t *testing.T) {
	ai := &fakeAI{advice: llm.Advice{
		Report:              llm.FallbackAdviceMessage,
		TopSavingCategory:   "None",
		TopSpendingCategory: "None",
	}}
	srv, _ := newTestServer(t, &fakeFinance{}, ai)

	rec := doJSON(srv, http.MethodGet, "/api/expenses/analysis/2025-06", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var advice llm.Advice
	if err := json.Unmarshal(rec.Body.Bytes(), &advice); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if advice.Report != llm.FallbackAdviceMessage {
		t.Errorf("report = %q, want fallback", advice.Report)
	}

	if rec := doJSON(srv, http.MethodGet, "/api/expenses/analysis/junk", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month = %d, want 400", rec.Code)
	}
}

func TestAnalysisRouteDoesNotShadowPeriodListing(t *testing.T) {
	finance := &fakeFinance{expenses: []core.Expense{{ID: 1, UserID: 1, Category: "Food"}}}
	srv, _ := newTestServer(t, finance, &fakeAI{})

	rec := doJSON(srv, http.MethodGet, "/api/expenses/today", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("period listing status = %d, want 200", rec.Code)
	}

	var expenses []core.Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &expenses); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(expenses) != 1 {
		t.Errorf("expenses = %d, want 1", len(expenses))
	}
}

func TestChatScopesThreadToUser(t *testing.T) {
	ai := &fakeAI{answer: "Spend less."}
	srv, _ := newTestServer(t, &fakeFinance{}, ai)

	rec := doJSON(srv, http.MethodPost, "/api/chat", map[string]any{"message": "help", "threadId": 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ai.threadID != "1:42" {
		t.Errorf("threadID = %q, want 1:42", ai.threadID)
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Spend less." {
		t.Errorf("resp = %+v", resp)
	}

	if rec := doJSON(srv, http.MethodPost, "/api/chat", map[string]any{"threadId": 42}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing message = %d, want 400", rec.Code)
	}
}

func TestChatThreadIDAcceptsAnyScalar(t *testing.T) {
	ai := &fakeAI{answer: "ok"}
	srv, _ := newTestServer(t, &fakeFinance{}, ai)

	tests := []struct {
		name     string
		threadID any
		wantKey  string
	}{
		{"string", "abc", "1:abc"},
		{"number", 42, "1:42"},
		{"missing", nil, "1:default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]any{"message": "help"}
			if tt.threadID != nil {
				body["threadId"] = tt.threadID
			}
			rec := doJSON(srv, http.MethodPost, "/api/chat", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if ai.threadID != tt.wantKey {
				t.Errorf("threadID = %q, want %q", ai.threadID, tt.wantKey)
			}
		})
	}
}

func TestTestAIPromptOnlyGeneratesAdvice(t *testing.T) {
	ai := &fakeAI{advice: llm.Advice{
		Report:              "Cut education spending.",
		TopSavingCategory:   "Food",
		TopSpendingCategory: "Education",
	}}
	srv, _ := newTestServer(t, &fakeFinance{}, ai)

	rec := doJSON(srv, http.MethodPost, "/api/test-ai", map[string]string{"prompt": "advise me"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Response llm.Advice `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response.Report != "Cut education spending." {
		t.Errorf("report = %q", resp.Response.Report)
	}

	// The advice runs over the fixed sample month, not real data
	if !ai.adviceSnap.Budget.Equal(decimal.NewFromInt(10000000)) {
		t.Errorf("sample budget = %s, want 10000000", ai.adviceSnap.Budget)
	}
	if len(ai.adviceSnap.ExpenseDetails) != 3 {
		t.Errorf("sample details = %d rows, want 3", len(ai.adviceSnap.ExpenseDetails))
	}
}

func TestTestAIImageRunsExtraction(t *testing.T) {
	ai := &fakeAI{items: []llm.ReceiptItem{
		{Amount: decimal.NewFromInt(10), Currency: "usd", Category: "Food"},
	}}
	srv, _ := newTestServer(t, &fakeFinance{}, ai)

	image := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	rec := doJSON(srv, http.MethodPost, "/api/test-ai", map[string]string{"image": image})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Response []llm.ReceiptItem `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Response) != 1 || resp.Response[0].Category != "Food" {
		t.Errorf("response = %+v", resp.Response)
	}

	if rec := doJSON(srv, http.MethodPost, "/api/test-ai", map[string]string{"image": "not base64!"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad base64 = %d, want 400", rec.Code)
	}
}

func TestTestAIRequiresPromptOrImage(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodPost, "/api/test-ai", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWeatherErrorIs500(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	rec := doJSON(srv, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeFinance{}, &fakeAI{})

	if rec := doJSON(srv, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := doJSON(srv, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}
}
