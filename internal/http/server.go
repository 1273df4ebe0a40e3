// Package http exposes the ledger as an authenticated JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Ledger is the transaction engine and transfer protocol.
type Ledger interface {
	CreateTransaction(ctx context.Context, ownerID int64, in core.NewTransaction) (core.Transaction, error)
	CreateTransfer(ctx context.Context, ownerID int64, in core.NewTransfer) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, ownerID, id int64, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, id int64) error
	ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
}

// Accounts manages bank accounts and credit cards.
type Accounts interface {
	CreateAccount(ctx context.Context, ownerID int64, in core.NewAccount) (core.BankAccount, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]core.BankAccount, error)
	GetAccount(ctx context.Context, ownerID, id int64) (core.BankAccount, error)
	UpdateAccount(ctx context.Context, ownerID, id int64, patch core.AccountPatch) (core.BankAccount, error)
	DeleteAccount(ctx context.Context, ownerID, id int64) error

	CreateCard(ctx context.Context, ownerID int64, in core.NewCard) (core.CreditCard, error)
	ListCards(ctx context.Context, ownerID int64) ([]core.CreditCard, error)
	GetCard(ctx context.Context, ownerID, id int64) (core.CreditCard, error)
	UpdateCard(ctx context.Context, ownerID, id int64, patch core.CardPatch) (core.CreditCard, error)
	DeleteCard(ctx context.Context, ownerID, id int64) error
}

type Summaries interface {
	GetMonthlySummary(ctx context.Context, ownerID int64, month, year int) (core.MonthlySummary, error)
}

type Verifier interface {
	VerifyBalances(ctx context.Context, ownerID int64) (services.VerifyReport, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Ledger    Ledger
	Accounts  Accounts
	Summaries Summaries
	Verifier  Verifier
	Store     Pinger
}

// Options tune the middleware chain.
type Options struct {
	JWTSecret          string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	auth     *Authenticator
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps:     deps,
		auth:     NewAuthenticator(opts.JWTSecret),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		logger:   log.For(log.ComponentHTTP),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Use(
		s.tracer.Middleware,
		s.detector.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
	)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	// /api routes sit on the root router so a method mismatch reaches
	// MethodNotAllowedHandler; a subrouter reports it as not found.
	api := func(path string, h http.HandlerFunc, method string) {
		router.Handle("/api"+path, s.protect(h)).Methods(method)
	}

	api("/transactions", s.handleCreateTransaction, http.MethodPost)
	api("/transactions", s.handleListTransactions, http.MethodGet)
	api("/transactions/{id:[0-9]+}", s.handleGetTransaction, http.MethodGet)
	api("/transactions/{id:[0-9]+}", s.handleUpdateTransaction, http.MethodPut)
	api("/transactions/{id:[0-9]+}", s.handleDeleteTransaction, http.MethodDelete)
	api("/transfers", s.handleCreateTransfer, http.MethodPost)
	api("/monthly_summary", s.handleMonthlySummary, http.MethodGet)

	api("/accounts", s.handleCreateAccount, http.MethodPost)
	api("/accounts", s.handleListAccounts, http.MethodGet)
	api("/accounts/{id:[0-9]+}", s.handleGetAccount, http.MethodGet)
	api("/accounts/{id:[0-9]+}", s.handleUpdateAccount, http.MethodPut)
	api("/accounts/{id:[0-9]+}", s.handleDeleteAccount, http.MethodDelete)

	api("/credit_cards", s.handleCreateCard, http.MethodPost)
	api("/credit_cards", s.handleListCards, http.MethodGet)
	api("/credit_cards/{id:[0-9]+}", s.handleGetCard, http.MethodGet)
	api("/credit_cards/{id:[0-9]+}", s.handleUpdateCard, http.MethodPut)
	api("/credit_cards/{id:[0-9]+}", s.handleDeleteCard, http.MethodDelete)

	api("/verify", s.handleVerify, http.MethodGet)

	return router
}

// protect runs h behind bearer auth and then the mutation rate limit.
func (s *Server) protect(h http.Handler) http.Handler {
	limit := s.limiter.Middleware(s.rateLimitKey, ratelimit.MutatingOnly, s.onRateLimit)
	return s.auth.Middleware(limit(h))
}

// rateLimitKey buckets authenticated callers by owner and everyone else by address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if owner, ok := OwnerFromContext(r.Context()); ok {
		return "owner:" + formatID(owner)
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// Shutdown drains in-flight requests and stops the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
