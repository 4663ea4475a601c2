package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ ReminderUseCase = (*reminderUC)(nil)

type ReminderUseCase interface {
	// Run reminds learners of installments due soon or already overdue.
	Run(ctx context.Context, now time.Time) (ReminderReport, error)
}

type ReminderReport struct {
	Candidates int
	Sent       int
	Skipped    int
	Errors     int
}

type reminderUC struct {
	statuses repository.PaymentStatusRepository
	users    repository.UserRepository
	cohorts  repository.CohortRepository
	catalog  *model.Catalog
	notify   notificationSender
	lead     time.Duration
	cooldown time.Duration
	batch    int
	log      *zerolog.Logger
}

func NewReminderUseCase(
	statuses repository.PaymentStatusRepository,
	users repository.UserRepository,
	cohorts repository.CohortRepository,
	catalog *model.Catalog,
	notifier adapter.Notifier,
	lead, cooldown time.Duration,
	batch int,
	logger *zerolog.Logger,
) *reminderUC {
	if lead <= 0 {
		lead = 3 * 24 * time.Hour
	}
	if cooldown <= 0 {
		cooldown = 20 * time.Hour
	}
	if batch <= 0 {
		batch = 500
	}
	if catalog == nil {
		catalog = model.NewCatalog(model.DefaultPlanAmounts())
	}
	l := logger.With().Str("component", "reminder_uc").Logger()
	return &reminderUC{
		statuses: statuses,
		users:    users,
		cohorts:  cohorts,
		catalog:  catalog,
		notify:   notificationSender{notifier: notifier, log: &l},
		lead:     lead,
		cooldown: cooldown,
		batch:    batch,
		log:      &l,
	}
}

func (u *reminderUC) Run(ctx context.Context, now time.Time) (ReminderReport, error) {
	var rep ReminderReport
	// everything still unpaid and due before now+lead, overdue items included
	cands, err := u.statuses.ListDueBetween(ctx, repository.NoTX, time.Time{}, now.Add(u.lead), u.batch)
	if err != nil {
		return rep, err
	}
	rep.Candidates = len(cands)

	for _, c := range cands {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if c.LastReminderSent != nil && now.Sub(*c.LastReminderSent) < u.cooldown {
			rep.Skipped++
			continue
		}
		if err := u.remind(ctx, c, now); err != nil {
			rep.Errors++
			u.log.Warn().Err(err).Str("payment_status_id", c.PaymentStatusID).Msg("reminder failed")
			continue
		}
		rep.Sent++
	}
	u.log.Info().Int("candidates", rep.Candidates).Int("sent", rep.Sent).Int("skipped", rep.Skipped).Msg("reminder sweep finished")
	return rep, nil
}

func (u *reminderUC) remind(ctx context.Context, c *repository.OverdueCandidate, now time.Time) error {
	user, err := u.users.FindByID(ctx, repository.NoTX, c.UserID)
	if err != nil {
		return err
	}
	course, _ := u.cohorts.FindCourse(ctx, repository.NoTX, c.CourseID)

	amount := c.Amount
	if amount == 0 && c.Plan == model.PlanFirstHalfComplete {
		pp := u.catalog.Pricing(c.Plan, time.Time{})
		amount = pp.Total - pp.InitialAmount
	}

	data := noticeData(user, course)
	data["InstallmentNumber"] = c.InstallmentNumber
	data["Amount"] = amount
	data["DueDate"] = dateString(&c.DueDate)
	data["Overdue"] = c.DueDate.Before(now)
	data["DaysLeft"] = int(c.DueDate.Sub(now).Hours() / 24)

	if u.notify.notifier == nil {
		return nil
	}
	if err := u.notify.notifier.Send(ctx, adapter.Notification{
		Template: string(model.NotifyPaymentReminder),
		To:       user.Email,
		Data:     data,
	}); err != nil {
		return err
	}

	if c.InstallmentID != "" {
		return u.statuses.TouchInstallmentReminder(ctx, repository.NoTX, c.InstallmentID, now)
	}
	return u.statuses.TouchBalanceReminder(ctx, repository.NoTX, c.PaymentStatusID, now)
}
