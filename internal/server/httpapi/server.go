// Package httpapi is the JSON HTTP surface of the server. Handlers are thin:
// they decode a request, call one service and encode the result. Business
// rules and error classification live in the services and common packages.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Identity interface {
	Resolve(ctx context.Context, in services.ResolveInput) (*services.ResolveResult, error)
	SignIn(ctx context.Context, email, password string) (*services.ResolveResult, error)
	Authenticate(ctx context.Context, token string) (*services.Caller, error)
	SignOut(ctx context.Context, userID string) error
	GetProfile(ctx context.Context, userID string) (*services.Profile, error)
	UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error)
}

type Avatars interface {
	UploadURL(ctx context.Context, userID string) (key, url string, err error)
	DownloadURL(ctx context.Context, userID, key string) (string, error)
}

type Companions interface {
	Create(ctx context.Context, userID string, in services.NewCompanion) (*models.Companion, error)
	List(ctx context.Context, userID string) ([]models.Companion, error)
}

type Entitlements interface {
	Evaluate(ctx context.Context, userID string, req services.EntitlementRequest) (*services.Decision, error)
}

type Wallet interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	TopUp(ctx context.Context, userID string, amount int64) (*models.Wallet, error)
	DebitForSubscription(ctx context.Context, userID, priceID string) (*services.Purchase, error)
	Transactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
	Reconcile(ctx context.Context, userID string) (*services.Reconciliation, error)
}

type Catalog interface {
	Plans(ctx context.Context) ([]services.PlanView, error)
	UserSubscriptions(ctx context.Context, userID string) ([]services.SubscriptionView, error)
}

type Otp interface {
	RequestChange(ctx context.Context, req services.ChangeRequest) (*services.ChallengeResult, error)
	Verify(ctx context.Context, accountID, otp, currentPassword string) (*services.ChallengeResult, error)
	Resend(ctx context.Context, accountID string) (*services.ChallengeResult, error)
}

type Payments interface {
	ActivateExternalPayment(ctx context.Context, n services.Notification) (*services.Activation, error)
}

// Services are the dependencies of the HTTP surface.
type Services struct {
	Identity     Identity
	Avatars      Avatars
	Companions   Companions
	Entitlements Entitlements
	Wallet       Wallet
	Catalog      Catalog
	Otp          Otp
	Payments     Payments
}

type Options struct {
	Addr          string
	CORSOrigins   string
	WebhookSecret string
	// TokenTTL sets the max age of the session cookie.
	TokenTTL time.Duration
}

type Server struct {
	opts   Options
	svc    Services
	log    logging.Logger
	router *chi.Mux
}

func NewServer(opts Options, svc Services, log logging.Logger) *Server {
	s := &Server{
		opts:   opts,
		svc:    svc,
		log:    log.With("module", "http_server"),
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if origins := splitOrigins(s.opts.CORSOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/resolve", s.handleResolve)
		r.Post("/auth/sign-in", s.handleSignIn)
		r.Get("/plans", s.handlePlans)
		r.Post("/webhooks/payments", s.handlePaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/sign-out", s.handleSignOut)

			r.Get("/me", s.handleProfile)
			r.Patch("/me", s.handleUpdateProfile)
			r.Post("/me/avatar", s.handleAvatarUpload)
			r.Get("/me/avatar", s.handleAvatarDownload)
			r.Get("/me/subscriptions", s.handleUserSubscriptions)
			r.Post("/me/entitlements", s.handleEvaluate)

			r.Route("/companions", func(r chi.Router) {
				r.Get("/", s.handleListCompanions)
				r.Post("/", s.handleCreateCompanion)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", s.handleWallet)
				r.Post("/top-up", s.handleTopUp)
				r.Post("/purchase", s.handlePurchase)
				r.Get("/transactions", s.handleTransactions)
				r.Get("/reconcile", s.handleReconcile)
			})

			r.Route("/account", func(r chi.Router) {
				r.Post("/change", s.handleRequestChange)
				r.Post("/verify", s.handleVerifyChange)
				r.Post("/resend", s.handleResendChange)
			})
		})
	})
}

func splitOrigins(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	s.log.Info(ctx, "Starting HTTP server", "address", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}
