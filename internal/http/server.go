package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"prorata/internal/core"
	"prorata/internal/log"
	"prorata/internal/middleware/ratelimit"
	"prorata/internal/middleware/security"
	"prorata/internal/middleware/trace"
	"prorata/internal/services"
)

type contextKey string

const userContextKey contextKey = "user"

// Server is the API server. Routing uses method patterns on the stdlib
// mux; cross-cutting concerns (security headers, probe detection, rate
// limiting, tracing) wrap the whole mux.
type Server struct {
	http.Server

	auth     *services.AuthService
	couples  *services.CoupleService
	expenses *services.ExpenseService
	balance  *services.BalanceService
	closures *services.MonthClosureService

	detector *security.Detector
	headers  *security.HeadersMiddleware
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	logger   *log.Logger
}

// Deps carries the services a Server needs.
type Deps struct {
	Auth     *services.AuthService
	Couples  *services.CoupleService
	Expenses *services.ExpenseService
	Balance  *services.BalanceService
	Closures *services.MonthClosureService
	Logger   *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		auth:     deps.Auth,
		couples:  deps.Couples,
		expenses: deps.Expenses,
		balance:  deps.Balance,
		closures: deps.Closures,

		detector: security.NewDetector(),
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		logger:   deps.Logger,
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/me", s.requireUser(s.handleMe))

	mux.HandleFunc("POST /api/couples", s.requireUser(s.handleCreateCouple))
	mux.HandleFunc("GET /api/couples/me", s.requireCouple(s.handleGetCouple))
	mux.HandleFunc("POST /api/couples/invites", s.requireCouple(s.handleInvite))
	mux.HandleFunc("POST /api/couples/join", s.requireUser(s.handleJoin))
	mux.HandleFunc("PUT /api/couples/settings", s.requireCouple(s.handleUpdateSettings))

	mux.HandleFunc("GET /api/expenses", s.requireCouple(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.requireCouple(s.handleCreateExpense))
	mux.HandleFunc("PATCH /api/expenses/{id}", s.requireCouple(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.requireCouple(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/months", s.requireCouple(s.handleMonthHistory))
	mux.HandleFunc("GET /api/months/{year}/{month}", s.requireCouple(s.handleMonthDetail))
	mux.HandleFunc("GET /api/months/{year}/{month}/balance", s.requireCouple(s.handleMonthBalance))
	mux.HandleFunc("POST /api/months/{year}/{month}/close", s.requireCouple(s.handleCloseMonth))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// wrap applies the outer middleware chain to the mux.
func (s *Server) wrap(mux *http.ServeMux) http.Handler {
	var h http.Handler = mux

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, nil)(mux)
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health probes skip rate limiting
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			mux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	h = s.tracer.Middleware(h)

	inner := h
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			writeError(w, http.StatusBadRequest, "bad_request", "request rejected")
			return
		}
		inner.ServeHTTP(w, r)
	})

	return s.headers.Middleware(h)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.limiter.Stop()
	return s.Shutdown(ctx)
}

// requireUser authenticates the bearer token and resolves the user.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, *core.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		userID, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		user, err := s.auth.UserByID(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx), user)
	}
}

// requireCouple authenticates and additionally resolves the user's
// couple. Users without a couple get a 404 before any handler runs.
func (s *Server) requireCouple(next func(http.ResponseWriter, *http.Request, *core.User, *core.Couple)) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request, user *core.User) {
		couple, err := s.couples.CoupleForUser(r.Context(), user.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		next(w, r, user, couple)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
