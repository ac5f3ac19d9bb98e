package services

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/cryptox"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/mail"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/companions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/otps"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/payments"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/reminders"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/usersubscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/wallets"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	cryptox.PasswordCost = bcrypt.MinCost
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	return cfg
}

func testLogger() logging.Logger {
	return logging.NewJSON(discard{}, "error")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// recordingMailer keeps every message; err makes Send fail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// --- in-memory store ---

// memStore backs every fake repository. It does not roll back: services
// are tested against it in orderings where a failed transaction has not
// written yet, and the sqlmock handle asserts commit or rollback.
type memStore struct {
	mu    sync.Mutex
	clock *clock.FakeClock

	users         map[string]*models.User
	accounts      []*models.Account
	otps          []*models.AccountOtp
	plans         []*models.Subscription
	features      []*models.Feature
	featureValues map[string]map[string]string
	prices        []*models.SubscriptionPrice
	userSubs      []*models.UserSubscription
	companions    []*models.Companion
	wallets       map[string]*models.Wallet
	walletTxs     []*models.WalletTransaction
	payments      []*models.Payment
	reminders     []*models.Reminder

	// errs injects a failure into the named repository method.
	errs map[string]error
}

func newMemStore(clk *clock.FakeClock) *memStore {
	return &memStore{
		clock:         clk,
		users:         map[string]*models.User{},
		featureValues: map[string]map[string]string{},
		wallets:       map[string]*models.Wallet{},
		errs:          map[string]error{},
	}
}

func (s *memStore) injected(name string) error { return s.errs[name] }

func (s *memStore) now() time.Time { return s.clock.Now() }

// addPlan stores a plan with raw feature values of the given types.
func (s *memStore) addPlan(name string, features map[string]string) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan := &models.Subscription{ID: uuid.NewString(), Name: name}
	s.plans = append(s.plans, plan)
	s.featureValues[plan.ID] = map[string]string{}
	for fname, v := range features {
		f := s.featureLocked(fname)
		s.featureValues[plan.ID][f.ID] = v
	}
	return plan
}

var featureTypes = map[string]models.FeatureType{
	FeatureMaxCompanions:     models.FeatureNumber,
	FeatureVoiceType:         models.FeatureString,
	FeatureStyleOptions:      models.FeatureString,
	FeatureMaxSessionMinutes: models.FeatureNumber,
	"session_history":        models.FeatureBoolean,
}

func (s *memStore) featureLocked(name string) *models.Feature {
	for _, f := range s.features {
		if f.Name == name {
			return f
		}
	}
	typ, ok := featureTypes[name]
	if !ok {
		typ = models.FeatureString
	}
	f := &models.Feature{ID: uuid.NewString(), Name: name, Type: typ}
	s.features = append(s.features, f)
	return f
}

func (s *memStore) addPrice(planID string, cents int64, interval models.BillingInterval) *models.SubscriptionPrice {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.SubscriptionPrice{ID: uuid.NewString(), SubscriptionID: planID, PriceCents: cents, Currency: "usd", Interval: interval, IsActive: true}
	s.prices = append(s.prices, p)
	return p
}

// addUser creates a user with a credentials account and an empty wallet.
func (s *memStore) addUser(email, passwordHash string) (*models.User, *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.NewString(), Name: "user", CreatedAt: s.now()}
	a := &models.Account{ID: uuid.NewString(), UserID: u.ID, Provider: common.ProviderCredentials, Email: email, PasswordHash: passwordHash, CreatedAt: s.now()}
	u.SelectedAccountID = a.ID
	s.users[u.ID] = u
	s.accounts = append(s.accounts, a)
	s.wallets[u.ID] = &models.Wallet{ID: uuid.NewString(), UserID: u.ID, UpdatedAt: s.now()}
	return u, a
}

func (s *memStore) addUserSub(userID string, plan *models.Subscription, status models.SubscriptionStatus, started, expires time.Time) *models.UserSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	us := &models.UserSubscription{ID: uuid.NewString(), UserID: userID, SubscriptionID: plan.ID, SubscriptionName: plan.Name, Status: status, StartedAt: started, ExpiresAt: expires}
	s.userSubs = append(s.userSubs, us)
	return us
}

func (s *memStore) wallet(userID string) models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.wallets[userID]
}

func (s *memStore) ledgerSum(walletID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.walletTxs {
		if t.WalletID == walletID {
			sum += t.Amount
		}
	}
	return sum
}

func (s *memStore) countAccounts(email, provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.accounts {
		if a.Email == email && a.Provider == provider {
			n++
		}
	}
	return n
}

func (s *memStore) otpsFor(accountID string) []models.AccountOtp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AccountOtp
	for _, o := range s.otps {
		if o.AccountID == accountID {
			out = append(out, *o)
		}
	}
	return out
}

func (s *memStore) account(id string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return *a
		}
	}
	return models.Account{}
}

// --- fake repository manager ---

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return fakeUsers{m.s} }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return fakeAccounts{m.s} }
func (m *fakeRepoManager) Otps(dbx.DBTX) otps.Repository                { return fakeOtps{m.s} }
func (m *fakeRepoManager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return fakeSubscriptions{m.s}
}
func (m *fakeRepoManager) UserSubscriptions(dbx.DBTX) usersubscriptions.Repository {
	return fakeUserSubs{m.s}
}
func (m *fakeRepoManager) Companions(dbx.DBTX) companions.Repository { return fakeCompanions{m.s} }
func (m *fakeRepoManager) Wallets(dbx.DBTX) wallets.Repository       { return fakeWallets{m.s} }
func (m *fakeRepoManager) Payments(dbx.DBTX) payments.Repository     { return fakePayments{m.s} }
func (m *fakeRepoManager) Reminders(dbx.DBTX) reminders.Repository   { return fakeReminders{m.s} }

// --- users ---

type fakeUsers struct{ s *memStore }

func (f fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Users.Create"); err != nil {
		return nil, err
	}
	c := *u
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.users[c.ID] = &c
	out := c
	return &out, nil
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := f.s.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f fakeUsers) LockByID(ctx context.Context, id string) (*models.User, error) {
	return f.GetByID(ctx, id)
}

func (f fakeUsers) UpdateSession(_ context.Context, userID, selectedAccountID, tokenHash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	if selectedAccountID != "" {
		u.SelectedAccountID = selectedAccountID
	}
	u.SessionTokenHash = tokenHash
	return nil
}

func (f fakeUsers) UpdateProfile(_ context.Context, userID, name, avatar string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	u.Name, u.Avatar = name, avatar
	c := *u
	return &c, nil
}

// --- accounts ---

type fakeAccounts struct{ s *memStore }

func (f fakeAccounts) Upsert(_ context.Context, a *models.Account) (*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Accounts.Upsert"); err != nil {
		return nil, err
	}
	for _, ex := range f.s.accounts {
		if ex.Email == a.Email && ex.Provider == a.Provider {
			if a.PasswordHash != "" {
				ex.PasswordHash = a.PasswordHash
			}
			if a.Avatar != "" {
				ex.Avatar = a.Avatar
			}
			c := *ex
			return &c, nil
		}
	}
	c := *a
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.accounts = append(f.s.accounts, &c)
	out := c
	return &out, nil
}

func (f fakeAccounts) find(match func(*models.Account) bool) (*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, a := range f.s.accounts {
		if match(a) {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrAccountNotFound
}

func (f fakeAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.ID == id })
}

func (f fakeAccounts) GetByEmailProvider(_ context.Context, email, provider string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.Email == email && a.Provider == provider })
}

func (f fakeAccounts) ListByEmail(_ context.Context, email string) ([]models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Account
	for _, a := range f.s.accounts {
		if a.Email == email {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f fakeAccounts) UpdateEmail(_ context.Context, id, email string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var target *models.Account
	for _, a := range f.s.accounts {
		if a.ID == id {
			target = a
		}
	}
	if target == nil {
		return common.ErrAccountNotFound
	}
	for _, a := range f.s.accounts {
		if a.ID != id && a.Email == email && a.Provider == target.Provider {
			return common.ErrAccountExists
		}
	}
	target.Email = email
	return nil
}

func (f fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, a := range f.s.accounts {
		if a.ID == id {
			a.PasswordHash = hash
			return nil
		}
	}
	return common.ErrAccountNotFound
}

// --- otps ---

type fakeOtps struct{ s *memStore }

func (f fakeOtps) Create(_ context.Context, o *models.AccountOtp) (*models.AccountOtp, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := *o
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.otps = append(f.s.otps, &c)
	out := c
	return &out, nil
}

// latest scans newest first.
func (f fakeOtps) latest(match func(*models.AccountOtp) bool) (*models.AccountOtp, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.otps) - 1; i >= 0; i-- {
		if match(f.s.otps[i]) {
			c := *f.s.otps[i]
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeOtps) FindPending(_ context.Context, accountID, newEmail string, now time.Time) (*models.AccountOtp, error) {
	return f.latest(func(o *models.AccountOtp) bool {
		return o.AccountID == accountID && o.NewEmail == newEmail && o.ExpiresAt.After(now)
	})
}

func (f fakeOtps) LockLatest(_ context.Context, accountID string) (*models.AccountOtp, error) {
	return f.latest(func(o *models.AccountOtp) bool { return o.AccountID == accountID })
}

func (f fakeOtps) deleteWhere(match func(*models.AccountOtp) bool) int64 {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	before := len(f.s.otps)
	f.s.otps = slices.DeleteFunc(f.s.otps, match)
	return int64(before - len(f.s.otps))
}

func (f fakeOtps) Delete(_ context.Context, id string) error {
	if err := f.s.injected("Otps.Delete"); err != nil {
		return err
	}
	if f.deleteWhere(func(o *models.AccountOtp) bool { return o.ID == id }) == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (f fakeOtps) DeleteForAccount(_ context.Context, accountID string) (int64, error) {
	return f.deleteWhere(func(o *models.AccountOtp) bool { return o.AccountID == accountID }), nil
}

func (f fakeOtps) DeleteExpiredForAccount(_ context.Context, accountID string, now time.Time) (int64, error) {
	return f.deleteWhere(func(o *models.AccountOtp) bool { return o.AccountID == accountID && o.ExpiresAt.Before(now) }), nil
}

func (f fakeOtps) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	if err := f.s.injected("Otps.DeleteExpired"); err != nil {
		return 0, err
	}
	return f.deleteWhere(func(o *models.AccountOtp) bool { return o.ExpiresAt.Before(now) }), nil
}

// --- subscriptions ---

type fakeSubscriptions struct{ s *memStore }

func (f fakeSubscriptions) List(context.Context) ([]models.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Subscription
	for _, p := range f.s.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeSubscriptions) findPlan(match func(*models.Subscription) bool) (*models.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.plans {
		if match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, common.ErrPlanNotFound
}

func (f fakeSubscriptions) GetByID(_ context.Context, id string) (*models.Subscription, error) {
	return f.findPlan(func(p *models.Subscription) bool { return p.ID == id })
}

func (f fakeSubscriptions) GetByName(_ context.Context, name string) (*models.Subscription, error) {
	return f.findPlan(func(p *models.Subscription) bool { return p.Name == name })
}

func (f fakeSubscriptions) Features(_ context.Context, subscriptionID string) ([]models.SubscriptionFeature, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Subscriptions.Features"); err != nil {
		return nil, err
	}
	var out []models.SubscriptionFeature
	for _, feat := range f.s.features {
		if v, ok := f.s.featureValues[subscriptionID][feat.ID]; ok {
			out = append(out, models.SubscriptionFeature{SubscriptionID: subscriptionID, FeatureID: feat.ID, Name: feat.Name, Type: feat.Type, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeSubscriptions) Prices(_ context.Context, subscriptionID string) ([]models.SubscriptionPrice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.SubscriptionPrice
	for _, p := range f.s.prices {
		if p.SubscriptionID == subscriptionID && p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f fakeSubscriptions) GetPrice(_ context.Context, priceID string) (*models.SubscriptionPrice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.prices {
		if p.ID == priceID {
			c := *p
			return &c, nil
		}
	}
	return nil, common.ErrPriceNotFound
}

func (f fakeSubscriptions) UpsertPlan(_ context.Context, plan *models.Subscription) (*models.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.plans {
		if p.Name == plan.Name {
			p.Description = plan.Description
			c := *p
			return &c, nil
		}
	}
	c := *plan
	c.ID = uuid.NewString()
	f.s.plans = append(f.s.plans, &c)
	f.s.featureValues[c.ID] = map[string]string{}
	out := c
	return &out, nil
}

func (f fakeSubscriptions) UpsertFeature(_ context.Context, feature *models.Feature) (*models.Feature, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	ex := f.s.featureLocked(feature.Name)
	ex.Type = feature.Type
	ex.Description = feature.Description
	c := *ex
	return &c, nil
}

func (f fakeSubscriptions) SetFeatureValue(_ context.Context, subscriptionID, featureID, value string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.featureValues[subscriptionID] == nil {
		f.s.featureValues[subscriptionID] = map[string]string{}
	}
	f.s.featureValues[subscriptionID][featureID] = value
	return nil
}

func (f fakeSubscriptions) UpsertPrice(_ context.Context, price *models.SubscriptionPrice) (*models.SubscriptionPrice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.prices {
		if p.SubscriptionID == price.SubscriptionID && p.Interval == price.Interval && p.Currency == price.Currency {
			id := p.ID
			*p = *price
			p.ID = id
			c := *p
			return &c, nil
		}
	}
	c := *price
	c.ID = uuid.NewString()
	f.s.prices = append(f.s.prices, &c)
	out := c
	return &out, nil
}

// --- user subscriptions ---

type fakeUserSubs struct{ s *memStore }

func (f fakeUserSubs) Create(_ context.Context, us *models.UserSubscription) (*models.UserSubscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("UserSubscriptions.Create"); err != nil {
		return nil, err
	}
	us.ID = uuid.NewString()
	c := *us
	f.s.userSubs = append(f.s.userSubs, &c)
	return us, nil
}

func (f fakeUserSubs) byUser(userID string) []models.UserSubscription {
	var out []models.UserSubscription
	for _, us := range f.s.userSubs {
		if us.UserID == userID {
			out = append(out, *us)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (f fakeUserSubs) Latest(_ context.Context, userID string) (*models.UserSubscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	list := f.byUser(userID)
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}
	return &list[0], nil
}

func (f fakeUserSubs) ListByUser(_ context.Context, userID string) ([]models.UserSubscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.byUser(userID), nil
}

func (f fakeUserSubs) GetByExternalID(_ context.Context, externalID string) (*models.UserSubscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, us := range f.s.userSubs {
		if us.ExternalID == externalID {
			c := *us
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUserSubs) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("UserSubscriptions.ExpireDue"); err != nil {
		return 0, err
	}
	var n int64
	for _, us := range f.s.userSubs {
		if us.Status == models.SubscriptionActive && us.ExpiresAt.Before(now) {
			us.Status = models.SubscriptionExpired
			n++
		}
	}
	return n, nil
}

// --- companions ---

type fakeCompanions struct{ s *memStore }

func (f fakeCompanions) Create(_ context.Context, c *models.Companion) (*models.Companion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *c
	cp.ID = uuid.NewString()
	cp.CreatedAt = f.s.now()
	f.s.companions = append(f.s.companions, &cp)
	out := cp
	return &out, nil
}

func (f fakeCompanions) CountByUser(_ context.Context, userID string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	n := 0
	for _, c := range f.s.companions {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f fakeCompanions) ListByUser(_ context.Context, userID string) ([]models.Companion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Companion
	for _, c := range f.s.companions {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

// --- wallets ---

type fakeWallets struct{ s *memStore }

func (f fakeWallets) Create(_ context.Context, userID string) (*models.Wallet, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Wallets.Create"); err != nil {
		return nil, err
	}
	w := &models.Wallet{ID: uuid.NewString(), UserID: userID, UpdatedAt: f.s.now()}
	f.s.wallets[userID] = w
	c := *w
	return &c, nil
}

func (f fakeWallets) GetByUserID(_ context.Context, userID string) (*models.Wallet, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	w, ok := f.s.wallets[userID]
	if !ok {
		return nil, common.ErrWalletNotFound
	}
	c := *w
	return &c, nil
}

func (f fakeWallets) LockByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	return f.GetByUserID(ctx, userID)
}

func (f fakeWallets) byID(id string) *models.Wallet {
	for _, w := range f.s.wallets {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (f fakeWallets) Credit(_ context.Context, walletID string, amount int64) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	w := f.byID(walletID)
	w.Balance += amount
	w.UpdatedAt = f.s.now()
	return w.Balance, nil
}

func (f fakeWallets) Debit(_ context.Context, walletID string, amount int64) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	w := f.byID(walletID)
	if w.Balance < amount {
		return 0, common.ErrInsufficientFunds
	}
	w.Balance -= amount
	w.UpdatedAt = f.s.now()
	return w.Balance, nil
}

func (f fakeWallets) AddTransaction(_ context.Context, t *models.WalletTransaction) (*models.WalletTransaction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := *t
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.walletTxs = append(f.s.walletTxs, &c)
	out := c
	return &out, nil
}

func (f fakeWallets) Transactions(_ context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.WalletTransaction
	for i := len(f.s.walletTxs) - 1; i >= 0; i-- {
		if t := f.s.walletTxs[i]; t.WalletID == walletID {
			out = append(out, *t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeWallets) SumTransactions(_ context.Context, walletID string) (int64, error) {
	return f.s.ledgerSum(walletID), nil
}

// --- payments ---

type fakePayments struct{ s *memStore }

func (f fakePayments) Create(_ context.Context, p *models.Payment) (*models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Payments.Create"); err != nil {
		return nil, err
	}
	if p.ExternalRef != "" {
		for _, ex := range f.s.payments {
			if ex.ExternalRef == p.ExternalRef {
				return nil, payments.ErrDuplicateExternalRef
			}
		}
	}
	c := *p
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.payments = append(f.s.payments, &c)
	out := c
	return &out, nil
}

func (f fakePayments) GetByExternalRef(_ context.Context, ref string) (*models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.payments {
		if p.ExternalRef == ref {
			c := *p
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- reminders ---

type fakeReminders struct{ s *memStore }

func (f fakeReminders) Schedule(_ context.Context, r *models.Reminder) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Reminders.Schedule"); err != nil {
		return err
	}
	for _, ex := range f.s.reminders {
		if ex.UserSubscriptionID == r.UserSubscriptionID {
			ex.DueAt, ex.Payload = r.DueAt, r.Payload
			return nil
		}
	}
	c := *r
	c.ID = uuid.NewString()
	c.CreatedAt = f.s.now()
	f.s.reminders = append(f.s.reminders, &c)
	return nil
}

func (f fakeReminders) ClaimDue(_ context.Context, now time.Time, exclude []string) (*models.Reminder, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.injected("Reminders.ClaimDue"); err != nil {
		return nil, err
	}
	var best *models.Reminder
	for _, r := range f.s.reminders {
		if r.DueAt.After(now) || slices.Contains(exclude, r.ID) {
			continue
		}
		if best == nil || r.DueAt.Before(best.DueAt) {
			best = r
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	c := *best
	if err := f.s.injected("Reminders.ClaimDue:" + c.ID); err != nil {
		return &c, err
	}
	return &c, nil
}

func (f fakeReminders) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.reminders = slices.DeleteFunc(f.s.reminders, func(r *models.Reminder) bool { return r.ID == id })
	return nil
}

// --- fixture ---

type fixture struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *memStore
	rm    *fakeRepoManager
	clock *clock.FakeClock
	cfg   *config.Config
	log   logging.Logger
	mail  *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	clk := clock.Fake(t0)
	store := newMemStore(clk)
	return &fixture{
		db:    db,
		mock:  mock,
		store: store,
		rm:    &fakeRepoManager{s: store},
		clock: clk,
		cfg:   testConfig(),
		log:   testLogger(),
		mail:  &recordingMailer{},
	}
}
