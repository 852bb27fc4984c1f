package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"hearthledger/internal/backup"
	billinghandler "hearthledger/internal/billing/handler"
	billingstripe "hearthledger/internal/billing/stripe"
	"hearthledger/internal/email"
	"hearthledger/internal/entitlement"
	"hearthledger/internal/handler"
	"hearthledger/internal/middleware"
	"hearthledger/internal/push"
	"hearthledger/internal/recurring"
	"hearthledger/internal/store"
	ws "hearthledger/internal/websocket"
)

// Config carries the wiring the server can't derive from the database.
type Config struct {
	BaseURL     string
	Entitlement entitlement.Config
	Push        push.Config
	Backup      backup.S3Config
	Stripe      billingstripe.Config
}

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	authH        *handler.AuthHandler
	householdH   *handler.HouseholdHandler
	entitlementH *handler.EntitlementHandler
	transactionH *handler.TransactionHandler
	budgetH      *handler.BudgetHandler
	habitH       *handler.HabitHandler
	recurringH   *handler.RecurringHandler
	pushH        *handler.PushHandler
	backupH      *handler.BackupHandler
	checkoutH    *billinghandler.CheckoutHandler
	webhookH     *billinghandler.WebhookHandler

	sessionStore   *store.SessionStore
	loginCodeStore *store.LoginCodeStore
	householdStore *store.HouseholdStore
	recurringSvc   *recurring.Service
	pushSched      *push.Scheduler
	engine         *entitlement.Engine
	queries        *entitlement.Queries
	rateLimiter    *middleware.RateLimiter
	logger         *slog.Logger
}

func New(db *sql.DB, cfg Config, emailClient *email.Client, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db)
	loginCodeStore := store.NewLoginCodeStore(db)
	transactionStore := store.NewTransactionStore(db)
	budgetStore := store.NewBudgetStore(db)
	habitStore := store.NewHabitStore(db)
	recurringStore := store.NewRecurringStore(db)
	pushStore := store.NewPushStore(db)
	entitlementStore := store.NewEntitlementStore(db)

	engine := entitlement.NewEngine(entitlementStore, householdStore, cfg.Entitlement, logger.With("component", "entitlement"))
	queries := entitlement.NewQueries(entitlementStore, cfg.Entitlement)

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
	var pushSched *push.Scheduler
	if pushSvc.Configured() {
		pushSched = push.NewScheduler(pushSvc, pushStore, habitStore, queries, logger.With("component", "push_scheduler"))
	}
	recurringSvc := recurring.NewService(recurringStore, transactionStore, logger.With("component", "recurring"))

	exporter := backup.NewExporter(transactionStore, budgetStore, habitStore)
	backupSvc := backup.NewService(cfg.Backup, exporter, logger.With("component", "backup"))

	stripeClient := billingstripe.NewClient(cfg.Stripe)

	return &Server{
		db:  db,
		hub: hub,

		authH:        handler.NewAuthHandler(userStore, loginCodeStore, sessionStore, householdStore, emailClient, logger),
		householdH:   handler.NewHouseholdHandler(householdStore, userStore, sessionStore, emailClient, logger),
		entitlementH: handler.NewEntitlementHandler(engine, queries, logger),
		transactionH: handler.NewTransactionHandler(transactionStore, budgetStore, pushStore, pushSvc, hub, logger),
		budgetH:      handler.NewBudgetHandler(budgetStore, hub, logger),
		habitH:       handler.NewHabitHandler(habitStore, hub, logger),
		recurringH:   handler.NewRecurringHandler(recurringStore, recurringSvc, hub, logger),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, logger),
		backupH:      handler.NewBackupHandler(backupSvc, logger),
		checkoutH:    billinghandler.NewCheckoutHandler(stripeClient, householdStore, userStore, cfg.BaseURL+"/settings/billing", logger),
		webhookH:     billinghandler.NewWebhookHandler(stripeClient, householdStore, engine, logger),

		sessionStore:   sessionStore,
		loginCodeStore: loginCodeStore,
		householdStore: householdStore,
		recurringSvc:   recurringSvc,
		pushSched:      pushSched,
		engine:         engine,
		queries:        queries,
		rateLimiter:    middleware.NewRateLimiter(),
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// LoginCodeStore returns the login code store for cleanup tasks.
func (s *Server) LoginCodeStore() *store.LoginCodeStore {
	return s.loginCodeStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// RecurringService returns the recurring poster for the background sweep.
func (s *Server) RecurringService() *recurring.Service {
	return s.recurringSvc
}

// PushScheduler returns the notification scheduler, or nil when VAPID keys
// are not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushSched
}

// HouseholdStore returns the household store for background tasks.
func (s *Server) HouseholdStore() *store.HouseholdStore {
	return s.householdStore
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/request-code", s.rateLimitedHandler(s.authH.RequestCode))
	outerMux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /api/stripe/webhook", s.webhookH.HandleStripeWebhook)

	// Everything else requires a session
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// scoped rejects sessions that have no household yet; admin additionally
	// requires the admin role in that household.
	scoped := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireHousehold(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireHousehold(middleware.RequireAdmin(h))
	}

	mux.HandleFunc("DELETE /api/auth/session", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Households and membership. Create and join accept unscoped sessions.
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("POST /api/households/join", s.householdH.Join)
	mux.Handle("GET /api/household", scoped(s.householdH.Get))
	mux.Handle("GET /api/household/members", scoped(s.householdH.ListMembers))
	mux.Handle("POST /api/household/invite", admin(s.householdH.Invite))
	mux.Handle("DELETE /api/household/members/{id}", admin(s.householdH.RemoveMember))

	// Entitlement
	mux.Handle("GET /api/entitlement", scoped(s.entitlementH.Get))
	mux.Handle("POST /api/entitlement/trial", scoped(s.entitlementH.StartTrial))

	// Ledger
	mux.Handle("POST /api/transactions", scoped(s.transactionH.Create))
	mux.Handle("GET /api/transactions", scoped(s.transactionH.List))
	mux.Handle("PUT /api/transactions/{id}", scoped(s.transactionH.Update))
	mux.Handle("DELETE /api/transactions/{id}", scoped(s.transactionH.Delete))

	// Budgets
	mux.Handle("PUT /api/budgets", scoped(s.budgetH.Set))
	mux.Handle("GET /api/budgets", scoped(s.budgetH.List))
	mux.Handle("DELETE /api/budgets/{category}", scoped(s.budgetH.Delete))

	// Recurring schedules
	mux.Handle("POST /api/recurring", scoped(s.recurringH.Create))
	mux.Handle("GET /api/recurring", scoped(s.recurringH.List))
	mux.Handle("PUT /api/recurring/{id}/active", scoped(s.recurringH.SetActive))
	mux.Handle("DELETE /api/recurring/{id}", scoped(s.recurringH.Delete))

	// Habits
	mux.Handle("POST /api/habits", scoped(s.habitH.Create))
	mux.Handle("GET /api/habits", scoped(s.habitH.List))
	mux.Handle("POST /api/habits/{id}/complete", scoped(s.habitH.Complete))
	mux.Handle("DELETE /api/habits/{id}", scoped(s.habitH.Delete))

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.Handle("POST /api/push/subscribe", scoped(s.pushH.Subscribe))
	mux.Handle("DELETE /api/push/subscribe", scoped(s.pushH.Unsubscribe))

	// Backups, gated behind an active plan
	proGate := middleware.RequirePro(s.queries, s.logger)
	mux.Handle("POST /api/backups", middleware.RequireHousehold(proGate(http.HandlerFunc(s.backupH.Run))))
	mux.Handle("GET /api/backups", middleware.RequireHousehold(proGate(http.HandlerFunc(s.backupH.List))))
	mux.Handle("GET /api/backups/download", middleware.RequireHousehold(proGate(http.HandlerFunc(s.backupH.Download))))
	mux.Handle("GET /api/backups/status", scoped(s.backupH.Status))

	// Billing
	mux.Handle("POST /api/billing/checkout", admin(s.checkoutH.CreateCheckoutSession))
	mux.Handle("POST /api/billing/portal", admin(s.checkoutH.CreateBillingPortalSession))

	// WebSocket sync
	mux.Handle("GET /ws", scoped(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"))))
}
