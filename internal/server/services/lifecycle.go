package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/mail"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

type SweepReport struct {
	RemindersSent   int
	RemindersFailed int
	Expired         int64
}

// LifecycleService runs the periodic jobs. Each entry point is safe to
// call repeatedly and from several processes at once.
type LifecycleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
	mailer      mail.Sender
	otp         *OtpService
}

func NewLifecycleService(db *sql.DB, m repomanager.RepositoryManager, mailer mail.Sender, otp *OtpService, log logging.Logger, clk clock.Clock) *LifecycleService {
	return &LifecycleService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "lifecycle"),
		clock:       clk,
		mailer:      mailer,
		otp:         otp,
	}
}

// RunSweep sends due renewal reminders, then marks subscriptions past
// their expiry as expired.
func (s *LifecycleService) RunSweep(ctx context.Context) (*SweepReport, error) {
	now := s.clock.Now()
	report := &SweepReport{}

	drainErr := s.drainReminders(ctx, report)

	expired, err := s.repomanager.UserSubscriptions(s.db).ExpireDue(ctx, now)
	if err != nil {
		err = fmt.Errorf("expire subscriptions: %w", err)
	}
	report.Expired = expired

	if err := errors.Join(drainErr, err); err != nil {
		return report, fail(ctx, s.log, "sweep", err)
	}
	if report.RemindersSent+report.RemindersFailed > 0 || report.Expired > 0 {
		s.log.Info(ctx, "sweep finished", "reminders_sent", report.RemindersSent,
			"reminders_failed", report.RemindersFailed, "expired", report.Expired)
	}
	return report, nil
}

// drainReminders handles one reminder per transaction. The row stays locked
// while its mail is sent, so a concurrent sweep skips it; it is deleted only
// after a successful send. A failed entry is skipped for the rest of this
// run and retried by the next one.
func (s *LifecycleService) drainReminders(ctx context.Context, report *SweepReport) error {
	var failed []string
	for ctx.Err() == nil {
		var claimed *models.Reminder
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			reminders := s.repomanager.Reminders(tx)
			r, err := reminders.ClaimDue(ctx, s.clock.Now(), failed)
			if r != nil {
				claimed = r
			}
			if err != nil {
				return err
			}

			msg, err := mail.ReminderMessage(r.Payload)
			if err != nil {
				return err
			}
			if err := s.mailer.Send(ctx, msg); err != nil {
				return errors.Join(common.ErrTransient, err)
			}
			return reminders.Delete(ctx, r.ID)
		})

		switch {
		case err == nil:
			report.RemindersSent++
		case claimed == nil && errors.Is(err, common.ErrorNotFound):
			return nil
		case claimed == nil:
			return fmt.Errorf("claim reminder: %w", err)
		default:
			s.log.Warn(ctx, "renewal reminder not sent", "reminder_id", claimed.ID, "error", err)
			report.RemindersFailed++
			failed = append(failed, claimed.ID)
		}
	}
	return ctx.Err()
}

// RunOtpCleanup deletes expired credential-change challenges.
func (s *LifecycleService) RunOtpCleanup(ctx context.Context) (int64, error) {
	return s.otp.Cleanup(ctx)
}
