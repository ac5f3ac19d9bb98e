package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/cryptox"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/auth"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

// ResolveInput is a sign-up or federated sign-in attempt. Token is the
// caller's current session token, if any.
type ResolveInput struct {
	Token    string
	Email    string
	Provider string
	Password string
	Name     string
	Avatar   string
}

type ResolveResult struct {
	UserID    string
	AccountID string
	IsNewUser bool
	Token     string
}

// Caller is the authenticated identity threaded through a request.
type Caller struct {
	UserID    string
	AccountID string
	Email     string
}

type Profile struct {
	User    *models.User
	Account *models.Account
}

type IdentityService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	log              logging.Logger
	clock            clock.Clock
	jwtSecret        []byte
	tokenValidity    time.Duration
	freePlanName     string
	freePlanValidity time.Duration
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, clk clock.Clock) *IdentityService {
	return &IdentityService{
		db:               db,
		repomanager:      m,
		log:              log.With("module", "identity"),
		clock:            clk,
		jwtSecret:        []byte(cfg.SecretKey),
		tokenValidity:    cfg.TokenValidityDuration,
		freePlanName:     cfg.FreePlanName,
		freePlanValidity: cfg.FreePlanValidity,
	}
}

func validateResolve(in *ResolveInput) error {
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", common.ErrValidation)
	}
	switch in.Provider {
	case common.ProviderCredentials:
		if in.Password == "" {
			return fmt.Errorf("%w: password is required", common.ErrValidation)
		}
	case common.ProviderGoogle:
		in.Password = ""
	default:
		return fmt.Errorf("%w: unknown provider %q", common.ErrValidation, in.Provider)
	}
	return nil
}

// Resolve links the account (email, provider) to a user and opens a session.
// The user is, in order: the owner of a valid session token, the owner of
// any account with the same email, or a freshly bootstrapped user with a
// free subscription and an empty wallet. All writes share one transaction.
func (s *IdentityService) Resolve(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	if err := validateResolve(&in); err != nil {
		return nil, err
	}

	var passwordHash string
	if in.Provider == common.ProviderCredentials {
		h, err := cryptox.HashPassword(in.Password)
		if err != nil {
			return nil, fail(ctx, s.log, "hash password", err)
		}
		passwordHash = h
	}

	callerID := s.callerFromToken(ctx, in.Token)
	now := s.clock.Now()
	res := &ResolveResult{}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repomanager.Users(tx)
		accountsRepo := s.repomanager.Accounts(tx)

		if callerID != "" {
			caller, err := usersRepo.LockByID(ctx, callerID)
			switch {
			case errors.Is(err, common.ErrUserNotFound):
				s.log.Info(ctx, "session token names an unknown user, resolving by email", "user_id", callerID)
				callerID = ""
			case err != nil:
				return err
			case !cryptox.TokenMatches(caller.SessionTokenHash, in.Token):
				s.log.Info(ctx, "session token is not the current one, resolving by email", "user_id", callerID)
				callerID = ""
			}
		}

		existing, err := accountsRepo.ListByEmail(ctx, in.Email)
		if err != nil {
			return err
		}

		userID, err := pickOwner(callerID, in.Provider, existing)
		if err != nil {
			return err
		}
		if userID == "" {
			userID, err = s.bootstrap(ctx, tx, in, now)
			if err != nil {
				return err
			}
			res.IsNewUser = true
		}

		account, err := accountsRepo.Upsert(ctx, &models.Account{
			UserID:       userID,
			Provider:     in.Provider,
			Email:        in.Email,
			PasswordHash: passwordHash,
			Avatar:       in.Avatar,
		})
		if err != nil {
			return err
		}
		if account.UserID != userID {
			return common.ErrAccountExists
		}

		token, err := s.openSession(ctx, tx, userID, account.ID, in.Email)
		if err != nil {
			return err
		}

		res.UserID = userID
		res.AccountID = account.ID
		res.Token = token
		return nil
	})
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, common.ErrAccountExists
		}
		return nil, fail(ctx, s.log, "resolve identity", err)
	}

	s.log.Info(ctx, "identity resolved", "user_id", res.UserID, "account_id", res.AccountID, "provider", in.Provider, "new_user", res.IsNewUser)
	return res, nil
}

// pickOwner returns the user the account must belong to, or "" when no
// identity exists yet for the email.
func pickOwner(callerID, provider string, existing []models.Account) (string, error) {
	if callerID != "" {
		for _, a := range existing {
			if a.UserID == callerID && a.Provider == provider {
				return "", common.ErrAlreadyLinked
			}
		}
		for _, a := range existing {
			if a.UserID != callerID {
				return "", common.ErrAccountExists
			}
		}
		return callerID, nil
	}

	if len(existing) == 0 {
		return "", nil
	}
	if provider == common.ProviderCredentials {
		for _, a := range existing {
			if a.Provider == common.ProviderCredentials {
				return "", common.ErrAccountExists
			}
		}
	}
	return existing[0].UserID, nil
}

// bootstrap creates the user together with its free subscription and wallet.
func (s *IdentityService) bootstrap(ctx context.Context, tx dbx.DBTX, in ResolveInput, now time.Time) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(in.Email, "@")
	}

	user, err := s.repomanager.Users(tx).Create(ctx, &models.User{Name: name, Avatar: in.Avatar})
	if err != nil {
		return "", err
	}

	plan, err := s.repomanager.Subscriptions(tx).GetByName(ctx, s.freePlanName)
	if err != nil {
		// a missing free plan is a deployment problem, not the caller's
		return "", fmt.Errorf("free plan %q: %v", s.freePlanName, err)
	}

	_, err = s.repomanager.UserSubscriptions(tx).Create(ctx, &models.UserSubscription{
		UserID:         user.ID,
		SubscriptionID: plan.ID,
		Status:         models.SubscriptionActive,
		StartedAt:      now,
		ExpiresAt:      now.Add(s.freePlanValidity),
	})
	if err != nil {
		return "", err
	}

	if _, err := s.repomanager.Wallets(tx).Create(ctx, user.ID); err != nil {
		return "", err
	}
	return user.ID, nil
}

func (s *IdentityService) openSession(ctx context.Context, db dbx.DBTX, userID, accountID, email string) (string, error) {
	token, err := auth.GenerateToken(userID, email, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return "", err
	}
	if err := s.repomanager.Users(db).UpdateSession(ctx, userID, accountID, cryptox.HashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}

// callerFromToken returns the user id carried by a valid token. A bad token
// is not an error here: resolution falls back to the email.
func (s *IdentityService) callerFromToken(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		s.log.Info(ctx, "ignoring session token", "error", err)
		return ""
	}
	return claims.UserID
}

// SignIn checks a credentials account and opens a new session, replacing
// any previous one.
func (s *IdentityService) SignIn(ctx context.Context, email, password string) (*ResolveResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmailProvider(ctx, email, common.ProviderCredentials)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, fail(ctx, s.log, "sign in", err)
	}
	if !cryptox.VerifyPassword(account.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, s.db, account.UserID, account.ID, email)
	if err != nil {
		return nil, fail(ctx, s.log, "sign in", err)
	}
	return &ResolveResult{UserID: account.UserID, AccountID: account.ID, Token: token}, nil
}

// Authenticate accepts only the user's current session token.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (*Caller, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fail(ctx, s.log, "authenticate", err)
	}
	if !cryptox.TokenMatches(user.SessionTokenHash, token) {
		return nil, common.ErrInvalidToken
	}

	return &Caller{UserID: user.ID, AccountID: user.SelectedAccountID, Email: claims.Email}, nil
}

func (s *IdentityService) SignOut(ctx context.Context, userID string) error {
	if err := s.repomanager.Users(s.db).UpdateSession(ctx, userID, "", ""); err != nil {
		return fail(ctx, s.log, "sign out", err)
	}
	return nil
}

func (s *IdentityService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fail(ctx, s.log, "get profile", err)
	}

	p := &Profile{User: user}
	if user.SelectedAccountID != "" {
		account, err := s.repomanager.Accounts(s.db).GetByID(ctx, user.SelectedAccountID)
		switch {
		case err == nil:
			p.Account = account
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fail(ctx, s.log, "get profile", err)
		}
	}
	return p, nil
}

func (s *IdentityService) UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	user, err := s.repomanager.Users(s.db).UpdateProfile(ctx, userID, name, strings.TrimSpace(avatar))
	if err != nil {
		return nil, fail(ctx, s.log, "update profile", err)
	}
	return user, nil
}
