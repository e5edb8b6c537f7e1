// Package http exposes the JSON API: auth, budgets, expenses, notifications,
// and the AI endpoints.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/llm"
	applog "github.com/hiendinhngoc/AI-personal-finance-coach/internal/log"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/middleware/ratelimit"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/middleware/security"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/middleware/trace"
)

// FinanceService is the budget and expense surface the handlers call.
// Implemented by services.Finance; tests plug in a fake.
type FinanceService interface {
	CreateBudget(ctx context.Context, userID int64, in core.BudgetInput) (core.Budget, error)
	Budget(ctx context.Context, userID int64, month string) (*core.Budget, error)
	CreateExpense(ctx context.Context, userID int64, in core.ExpenseInput) (core.Expense, *core.Notification, error)
	ListExpenses(ctx context.Context, userID int64, period string) ([]core.Expense, error)
	Snapshot(ctx context.Context, userID int64, month string) core.Snapshot
	Analysis(ctx context.Context, userID int64, month string) (current, previous core.Snapshot)
	Notifications(ctx context.Context, userID int64) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// AIGateway is the LLM surface the handlers call. Implemented by llm.Gateway.
type AIGateway interface {
	ExtractReceipt(ctx context.Context, image []byte, prompt string) ([]llm.ReceiptItem, error)
	GenerateAdvice(ctx context.Context, current, previous core.Snapshot) (llm.Advice, error)
	AnswerQuestion(ctx context.Context, snap core.Snapshot, threadID, question string) (string, error)
	Weather(ctx context.Context) (llm.WeatherReport, error)
}

// AuthService is the session and credential surface. Implemented by
// auth.Service.
type AuthService interface {
	Register(ctx context.Context, username, password string) (core.User, string, error)
	Login(ctx context.Context, username, password string) (core.User, string, error)
	Logout(ctx context.Context, token string) error
	RequireAuth(next http.Handler) http.Handler
	SessionTTL() time.Duration
}

// Readiness reports whether the server's dependencies are reachable.
type Readiness interface {
	Ping(ctx context.Context) error
}

// Options carries the wiring for NewServer.
type Options struct {
	Addr           string
	Auth           AuthService
	Finance        FinanceService
	AI             AIGateway
	Rates          core.RateSource
	Ready          Readiness
	Logger         *applog.Logger
	MaxUploadBytes int64
}

type Server struct {
	http.Server

	authSvc AuthService
	finance FinanceService
	ai      AIGateway
	rates   core.RateSource
	ready   Readiness

	maxUploadBytes int64

	limiter      *ratelimit.Limiter
	detector     *security.Detector
	shutdownOnce sync.Once
}

// NewServer wires the router, middleware, and handlers into a ready-to-run
// HTTP server.
func NewServer(opts Options) *Server {
	s := &Server{
		authSvc:        opts.Auth,
		finance:        opts.Finance,
		ai:             opts.AI,
		rates:          opts.Rates,
		ready:          opts.Ready,
		maxUploadBytes: opts.MaxUploadBytes,
		limiter:        ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:       security.NewDetector(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 5 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP).Middleware)
	r.Use(applog.Middleware(logger))
	r.Use(applog.RequestIDMiddleware(func(req *http.Request) string {
		return trace.GetRequestID(req.Context())
	}))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.rateLimitMutations)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authSvc.RequireAuth)

			r.Get("/user", s.handleCurrentUser)

			r.Post("/budget", s.handleCreateBudget)
			r.Get("/budget/{month}", s.handleGetBudget)

			r.Post("/expenses", s.handleCreateExpense)
			r.Post("/expenses/upload", s.handleUploadReceipt)
			r.Get("/expenses/analysis/{month}", s.handleAnalysis)
			r.Get("/expenses/{period}", s.handleListExpenses)

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)

			r.Post("/chat", s.handleChat)
			r.Post("/test-ai", s.handleTestAI)
			r.Get("/weather", s.handleWeather)
		})
	})

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  time.Minute,
	}

	return s
}

// rateLimitMutations applies the per-IP limiter to mutating requests only;
// reads stay unthrottled.
func (s *Server) rateLimitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, nil)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the limiter's cleanup goroutine and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

var _ AuthService = (*auth.Service)(nil)
