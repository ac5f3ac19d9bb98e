package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/cryptox"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOtpFixture(t *testing.T) (*fixture, *OtpService, *models.Account) {
	t.Helper()
	f := newFixture(t)
	hash, err := cryptox.HashPassword("current")
	require.NoError(t, err)
	_, account := f.store.addUser("old@x.com", hash)
	return f, NewOtpService(f.db, f.rm, f.mail, f.cfg, f.log, f.clock), account
}

func lastCode(t *testing.T, f *fixture) string {
	t.Helper()
	f.mail.mu.Lock()
	defer f.mail.mu.Unlock()
	require.NotEmpty(t, f.mail.sent)
	msg := f.mail.sent[len(f.mail.sent)-1]
	for _, field := range strings.Fields(msg.Text) {
		field = strings.Trim(field, "*`.:")
		if len(field) == cryptox.OtpLength && strings.Trim(field, "0123456789") == "" {
			return field
		}
	}
	t.Fatalf("no code in mail: %q", msg.Text)
	return ""
}

// requestChange runs a successful request inside its expected transaction.
func requestChange(t *testing.T, f *fixture, s *OtpService, req ChangeRequest) *ChallengeResult {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := s.RequestChange(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestRequestChange_SendsCode(t *testing.T) {
	f, s, account := newOtpFixture(t)

	res := requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "New@X.com"})

	assert.Equal(t, ChallengeSent, res.Status)
	assert.Equal(t, t0.Add(time.Minute), res.ExpiresAt)

	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.Equal(t, "new@x.com", otps[0].NewEmail)
	assert.Empty(t, otps[0].NewPasswordHash)

	require.Equal(t, 1, f.mail.count())
	assert.Equal(t, "new@x.com", f.mail.sent[0].To)
	assert.Equal(t, otps[0].Otp, lastCode(t, f))
	expectationsMet(t, f.mock)
}

func TestRequestChange_PasswordOnlyMailsCurrentAddress(t *testing.T) {
	f, s, account := newOtpFixture(t)

	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewPassword: "next"})

	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.True(t, cryptox.VerifyPassword(otps[0].NewPasswordHash, "next"))
	assert.Equal(t, "old@x.com", f.mail.sent[0].To)
}

func TestRequestChange_Rejections(t *testing.T) {
	f, s, account := newOtpFixture(t)
	f.store.addUser("taken@x.com", "")

	_, err := s.RequestChange(context.Background(), ChangeRequest{AccountID: account.ID, CurrentPassword: "wrong", NewEmail: "n@x.com"})
	assert.ErrorIs(t, err, common.ErrBadCredential)

	_, err = s.RequestChange(context.Background(), ChangeRequest{AccountID: account.ID, CurrentPassword: "current"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.RequestChange(context.Background(), ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "OLD@x.com"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.RequestChange(context.Background(), ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "taken@x.com"})
	assert.ErrorIs(t, err, common.ErrAccountExists)

	_, err = s.RequestChange(context.Background(), ChangeRequest{AccountID: "missing", CurrentPassword: "current", NewEmail: "n@x.com"})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)

	assert.Empty(t, f.store.otpsFor(account.ID))
	assert.Equal(t, 0, f.mail.count())
}
func TestRequestChange_AlreadySent(t *testing.T) {
	f, s, account := newOtpFixture(t)
	req := ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"}

	first := requestChange(t, f, s, req)

	f.clock.Advance(20 * time.Second)
	second := requestChange(t, f, s, req)

	assert.Equal(t, ChallengeAlreadySent, second.Status)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Len(t, f.store.otpsFor(account.ID), 1)
	assert.Equal(t, 1, f.mail.count())
	expectationsMet(t, f.mock)
}

func TestRequestChange_DropsExpiredChallenges(t *testing.T) {
	f, s, account := newOtpFixture(t)

	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "a@x.com"})

	f.clock.Advance(2 * time.Minute)
	res := requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "a@x.com"})

	assert.Equal(t, ChallengeSent, res.Status)
	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.Equal(t, t0.Add(3*time.Minute), otps[0].ExpiresAt)
}

func TestRequestChange_SupersedesEarlierChallenge(t *testing.T) {
	f, s, account := newOtpFixture(t)

	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "a@x.com"})
	codeA := lastCode(t, f)

	f.clock.Advance(10 * time.Second)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "b@x.com"})
	codeB := lastCode(t, f)

	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.Equal(t, "b@x.com", otps[0].NewEmail)

	if codeA != codeB {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := s.Verify(context.Background(), account.ID, codeA, "current")
		assert.ErrorIs(t, err, common.ErrInvalidOtp)
		assert.Equal(t, "old@x.com", f.store.account(account.ID).Email)
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := s.Verify(context.Background(), account.ID, codeB, "current")
	require.NoError(t, err)
	assert.Equal(t, ChallengeApplied, res.Status)
	assert.Equal(t, "b@x.com", f.store.account(account.ID).Email)
	expectationsMet(t, f.mock)
}

func TestRequestChange_MailFailureKeepsChallenge(t *testing.T) {
	f, s, account := newOtpFixture(t)
	f.mail.err = errors.New("smtp: 451 try later")

	res := requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"})
	assert.Equal(t, ChallengeSent, res.Status)
	assert.Len(t, f.store.otpsFor(account.ID), 1)
}

func TestVerify_AppliesChangeOnce(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com", NewPassword: "next"})
	code := lastCode(t, f)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := s.Verify(context.Background(), account.ID, code, "current")
	require.NoError(t, err)
	assert.Equal(t, ChallengeApplied, res.Status)

	updated := f.store.account(account.ID)
	assert.Equal(t, "new@x.com", updated.Email)
	assert.True(t, cryptox.VerifyPassword(updated.PasswordHash, "next"))
	assert.Empty(t, f.store.otpsFor(account.ID))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = s.Verify(context.Background(), account.ID, code, "next")
	assert.ErrorIs(t, err, common.ErrInvalidOtp)
	expectationsMet(t, f.mock)
}

func TestVerify_EmailOnlyKeepsPassword(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"})

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := s.Verify(context.Background(), account.ID, lastCode(t, f), "current")
	require.NoError(t, err)

	updated := f.store.account(account.ID)
	assert.Equal(t, "new@x.com", updated.Email)
	assert.True(t, cryptox.VerifyPassword(updated.PasswordHash, "current"))
}

func TestVerify_Rejections(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"})
	code := lastCode(t, f)

	_, err := s.Verify(context.Background(), account.ID, code, "wrong")
	assert.ErrorIs(t, err, common.ErrBadCredential)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = s.Verify(context.Background(), account.ID, wrong, "current")
	assert.ErrorIs(t, err, common.ErrInvalidOtp)

	_, err = s.Verify(context.Background(), account.ID, " ", "current")
	assert.ErrorIs(t, err, common.ErrInvalidOtp)

	assert.Equal(t, "old@x.com", f.store.account(account.ID).Email)
	assert.Len(t, f.store.otpsFor(account.ID), 1)
	expectationsMet(t, f.mock)
}

func TestVerify_ChallengeConsumedConcurrently(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"})
	f.store.errs["Otps.Delete"] = common.ErrorNotFound

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := s.Verify(context.Background(), account.ID, lastCode(t, f), "current")
	assert.ErrorIs(t, err, common.ErrInvalidOtp)
	assert.Equal(t, "old@x.com", f.store.account(account.ID).Email)
	expectationsMet(t, f.mock)
}

func TestVerify_ExpiredResendsOnce(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com"})
	old := f.store.otpsFor(account.ID)[0]

	f.clock.Advance(2 * time.Minute)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := s.Verify(context.Background(), account.ID, old.Otp, "current")
	require.NoError(t, err)

	assert.Equal(t, ChallengeExpiredResent, res.Status)
	assert.Equal(t, t0.Add(3*time.Minute), res.ExpiresAt)
	assert.Equal(t, "old@x.com", f.store.account(account.ID).Email)

	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.NotEqual(t, old.ID, otps[0].ID)
	assert.Equal(t, "new@x.com", otps[0].NewEmail)
	assert.Equal(t, 2, f.mail.count())

	// The expired code is spent; only the replacement applies.
	if otps[0].Otp != old.Otp {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err = s.Verify(context.Background(), account.ID, old.Otp, "current")
		assert.ErrorIs(t, err, common.ErrInvalidOtp)
		assert.Len(t, f.store.otpsFor(account.ID), 1)
		assert.Equal(t, 2, f.mail.count())
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err = s.Verify(context.Background(), account.ID, otps[0].Otp, "current")
	require.NoError(t, err)
	assert.Equal(t, ChallengeApplied, res.Status)
	assert.Equal(t, "new@x.com", f.store.account(account.ID).Email)
	expectationsMet(t, f.mock)
}

func TestVerify_ExpiredPasswordOnly(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewPassword: "next"})
	code := lastCode(t, f)

	f.clock.Advance(time.Hour)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := s.Verify(context.Background(), account.ID, code, "current")
	assert.ErrorIs(t, err, common.ErrChallengeExpired)
	assert.Empty(t, f.store.otpsFor(account.ID))
	assert.True(t, cryptox.VerifyPassword(f.store.account(account.ID).PasswordHash, "current"))
	expectationsMet(t, f.mock)
}

func TestResend(t *testing.T) {
	f, s, account := newOtpFixture(t)
	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "new@x.com", NewPassword: "next"})
	old := f.store.otpsFor(account.ID)[0]

	f.clock.Advance(30 * time.Second)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := s.Resend(context.Background(), account.ID)
	require.NoError(t, err)

	assert.Equal(t, ChallengeSent, res.Status)
	assert.Equal(t, t0.Add(90*time.Second), res.ExpiresAt)
	otps := f.store.otpsFor(account.ID)
	require.Len(t, otps, 1)
	assert.NotEqual(t, old.ID, otps[0].ID)
	assert.Equal(t, old.NewPasswordHash, otps[0].NewPasswordHash)
	assert.Equal(t, 2, f.mail.count())
	expectationsMet(t, f.mock)
}

func TestResend_NothingToResend(t *testing.T) {
	f, s, account := newOtpFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := s.Resend(context.Background(), account.ID)
	assert.ErrorIs(t, err, common.ErrNothingToResend)

	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewPassword: "next"})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = s.Resend(context.Background(), account.ID)
	assert.ErrorIs(t, err, common.ErrNothingToResend)
	assert.Equal(t, 1, f.mail.count())
	expectationsMet(t, f.mock)
}

func TestCleanup(t *testing.T) {
	f, s, account := newOtpFixture(t)
	hash, err := cryptox.HashPassword("current")
	require.NoError(t, err)
	_, other := f.store.addUser("other@x.com", hash)

	requestChange(t, f, s, ChangeRequest{AccountID: account.ID, CurrentPassword: "current", NewEmail: "a@x.com"})
	f.clock.Advance(45 * time.Second)
	requestChange(t, f, s, ChangeRequest{AccountID: other.ID, CurrentPassword: "current", NewEmail: "b@x.com"})

	f.clock.Advance(30 * time.Second)
	n, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Empty(t, f.store.otpsFor(account.ID))
	otps := f.store.otpsFor(other.ID)
	require.Len(t, otps, 1)
	assert.Equal(t, "b@x.com", otps[0].NewEmail)

	f.store.errs["Otps.DeleteExpired"] = errors.New("db error: gone")
	_, err = s.Cleanup(context.Background())
	assert.ErrorIs(t, err, common.ErrorInternal)
}
