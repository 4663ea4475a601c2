package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ AuditUseCase = (*auditUC)(nil)

type AuditUseCase interface {
	// Run looks at recent deactivations and alerts the operator about suspicious ones.
	// It never reverses a deactivation.
	Run(ctx context.Context, now time.Time) (AuditReport, error)
}

type AuditFlag string

const (
	FlagCohortNotStarted    AuditFlag = "cohort_not_started"
	FlagAllInstallmentsPaid AuditFlag = "all_installments_paid"
	FlagFullPaymentPlan     AuditFlag = "full_payment_plan"
)

type AuditFinding struct {
	PaymentStatusID string
	UserID          string
	CourseID        string
	Plan            model.PaymentPlan
	Flags           []AuditFlag
	Alerted         bool
}

type AuditReport struct {
	Checked  int
	Findings []AuditFinding
	Errors   int
}

type auditUC struct {
	statuses   repository.PaymentStatusRepository
	users      repository.UserRepository
	cohorts    repository.CohortRepository
	notifLog   repository.NotificationLogRepository
	notify     notificationSender
	alertEmail string
	window     time.Duration
	log        *zerolog.Logger
}

func NewAuditUseCase(
	statuses repository.PaymentStatusRepository,
	users repository.UserRepository,
	cohorts repository.CohortRepository,
	notifLog repository.NotificationLogRepository,
	notifier adapter.Notifier,
	alertEmail string,
	window time.Duration,
	logger *zerolog.Logger,
) *auditUC {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	l := logger.With().Str("component", "audit_uc").Logger()
	return &auditUC{
		statuses:   statuses,
		users:      users,
		cohorts:    cohorts,
		notifLog:   notifLog,
		notify:     notificationSender{notifier: notifier, log: &l},
		alertEmail: alertEmail,
		window:     window,
		log:        &l,
	}
}

func (u *auditUC) Run(ctx context.Context, now time.Time) (AuditReport, error) {
	var rep AuditReport
	expired, err := u.statuses.ListRecentlyExpired(ctx, repository.NoTX, now.Add(-u.window))
	if err != nil {
		return rep, err
	}
	for _, ps := range expired {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		flags, err := u.flags(ctx, ps, now)
		if err != nil {
			rep.Errors++
			u.log.Error().Err(err).Str("payment_status_id", ps.ID).Msg("audit check failed")
			continue
		}
		if len(flags) == 0 {
			continue
		}
		f := AuditFinding{
			PaymentStatusID: ps.ID,
			UserID:          ps.UserID,
			CourseID:        ps.CourseID,
			Plan:            ps.Plan,
			Flags:           flags,
		}
		f.Alerted = u.alert(ctx, ps, flags)
		u.log.Warn().
			Str("user_id", ps.UserID).
			Str("course_id", ps.CourseID).
			Str("flags", joinFlags(flags)).
			Msg("suspicious deactivation")
		rep.Findings = append(rep.Findings, f)
	}
	u.log.Info().Int("checked", rep.Checked).Int("flagged", len(rep.Findings)).Msg("deactivation audit finished")
	return rep, nil
}

func (u *auditUC) flags(ctx context.Context, ps *model.PaymentStatus, now time.Time) ([]AuditFlag, error) {
	var out []AuditFlag
	if ps.CohortID != nil {
		c, err := u.cohorts.FindByID(ctx, repository.NoTX, *ps.CohortID)
		if err != nil {
			return nil, err
		}
		if c.StartDate.After(now) {
			out = append(out, FlagCohortNotStarted)
		}
	}
	if len(ps.Installments) > 0 && ps.AllPaid() {
		out = append(out, FlagAllInstallmentsPaid)
	}
	if ps.Plan == model.PlanFullPayment {
		out = append(out, FlagFullPaymentPlan)
	}
	return out, nil
}

// alert mails the operator, cc'ing the learner, once per status and flag set.
func (u *auditUC) alert(ctx context.Context, ps *model.PaymentStatus, flags []AuditFlag) bool {
	kind := string(model.NotifySuspiciousDeactivation)
	key := joinFlags(flags)
	if u.notifLog != nil {
		if sent, err := u.notifLog.Exists(ctx, repository.NoTX, ps.ID, kind, key); err == nil && sent {
			return false
		}
	}
	if u.alertEmail == "" {
		u.log.Warn().Msg("no alert address configured; suspicious deactivation only logged")
		return false
	}

	var cc []string
	data := map[string]any{
		"UserID":          ps.UserID,
		"CourseID":        ps.CourseID,
		"Plan":            string(ps.Plan),
		"Flags":           key,
		"PaymentStatusID": ps.ID,
	}
	if user, err := u.users.FindByID(ctx, repository.NoTX, ps.UserID); err == nil {
		data["Name"] = user.DisplayName()
		data["Email"] = user.Email
		data["DeactivatedAt"] = dateString(user.DeactivatedAt)
		if user.Email != "" {
			cc = append(cc, user.Email)
		}
	}

	sent := u.notify.send(ctx, adapter.Notification{Template: kind, To: u.alertEmail, Cc: cc, Data: data})
	if sent && u.notifLog != nil {
		if err := u.notifLog.Save(ctx, repository.NoTX, ps.ID, ps.UserID, kind, key); err != nil {
			u.log.Warn().Err(err).Msg("notification log write failed")
		}
	}
	return sent
}

func joinFlags(flags []AuditFlag) string {
	s := make([]string, len(flags))
	for i, f := range flags {
		s[i] = string(f)
	}
	sort.Strings(s)
	return strings.Join(s, ",")
}
