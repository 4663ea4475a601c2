package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain/model"
	"course-payments/internal/infra/metrics"
	"course-payments/internal/usecase"
)

// Job names double as lock keys ("job:<name>") and metric labels.
const (
	JobExpiry       = "expiry_sweep"
	JobReminder     = "payment_reminder"
	JobDeactivation = "deactivation"
	JobAudit        = "deactivation_audit"
)

// ExpiryJob re-checks stale pending gateway transactions and settles or expires them.
type ExpiryJob struct {
	uc  usecase.PaymentUseCase
	log *zerolog.Logger
}

func NewExpiryJob(uc usecase.PaymentUseCase, logger *zerolog.Logger) *ExpiryJob {
	l := logger.With().Str("component", "ExpiryJob").Logger()
	return &ExpiryJob{uc: uc, log: &l}
}

func (j *ExpiryJob) Name() string { return JobExpiry }

func (j *ExpiryJob) Run(ctx context.Context, now time.Time) error {
	rep, err := j.uc.SweepStalePending(ctx, now)
	metrics.AddJobItems(JobExpiry, "checked", rep.Checked)
	metrics.AddJobItems(JobExpiry, "succeeded", rep.Succeeded)
	metrics.AddJobItems(JobExpiry, "expired", rep.Expired)
	metrics.AddJobItems(JobExpiry, "error", rep.Errors)
	metrics.AddPayments(string(model.TransactionSuccess), rep.Succeeded)
	metrics.AddPayments(string(model.TransactionExpired), rep.Expired)
	if rep.Checked > 0 {
		j.log.Info().Int("checked", rep.Checked).Int("succeeded", rep.Succeeded).Int("expired", rep.Expired).
			Int("errors", rep.Errors).Msg("stale pending sweep")
	}
	return err
}

// ReminderJob emails learners about installments due soon or overdue.
type ReminderJob struct {
	uc  usecase.ReminderUseCase
	log *zerolog.Logger
}

func NewReminderJob(uc usecase.ReminderUseCase, logger *zerolog.Logger) *ReminderJob {
	l := logger.With().Str("component", "ReminderJob").Logger()
	return &ReminderJob{uc: uc, log: &l}
}

func (j *ReminderJob) Name() string { return JobReminder }

func (j *ReminderJob) Run(ctx context.Context, now time.Time) error {
	rep, err := j.uc.Run(ctx, now)
	metrics.AddJobItems(JobReminder, "sent", rep.Sent)
	metrics.AddJobItems(JobReminder, "skipped", rep.Skipped)
	metrics.AddJobItems(JobReminder, "error", rep.Errors)
	return err
}

// DeactivationJob expires enrollments whose installments are past their grace deadline.
type DeactivationJob struct {
	uc  usecase.DeactivationUseCase
	log *zerolog.Logger
}

func NewDeactivationJob(uc usecase.DeactivationUseCase, logger *zerolog.Logger) *DeactivationJob {
	l := logger.With().Str("component", "DeactivationJob").Logger()
	return &DeactivationJob{uc: uc, log: &l}
}

func (j *DeactivationJob) Name() string { return JobDeactivation }

func (j *DeactivationJob) Run(ctx context.Context, now time.Time) error {
	rep, err := j.uc.Run(ctx, now)
	for _, d := range rep.Deactivated {
		metrics.IncDeactivation(string(d.Plan), string(d.Position))
	}
	metrics.AddJobItems(JobDeactivation, "deactivated", len(rep.Deactivated))
	metrics.AddJobItems(JobDeactivation, "skipped", rep.Skipped)
	metrics.AddJobItems(JobDeactivation, "error", rep.Errors)
	if len(rep.Deactivated) > 0 {
		j.log.Info().Int("deactivated", len(rep.Deactivated)).Int("candidates", rep.Candidates).Msg("overdue enrollments expired")
	}
	return err
}

// AuditJob reviews recent deactivations and alerts the operator about suspicious ones.
type AuditJob struct {
	uc  usecase.AuditUseCase
	log *zerolog.Logger
}

func NewAuditJob(uc usecase.AuditUseCase, logger *zerolog.Logger) *AuditJob {
	l := logger.With().Str("component", "AuditJob").Logger()
	return &AuditJob{uc: uc, log: &l}
}

func (j *AuditJob) Name() string { return JobAudit }

func (j *AuditJob) Run(ctx context.Context, now time.Time) error {
	rep, err := j.uc.Run(ctx, now)
	alerted := 0
	for _, f := range rep.Findings {
		for _, flag := range f.Flags {
			metrics.IncAuditFlag(string(flag))
		}
		if f.Alerted {
			alerted++
		}
	}
	metrics.AddJobItems(JobAudit, "checked", rep.Checked)
	metrics.AddJobItems(JobAudit, "flagged", len(rep.Findings))
	metrics.AddJobItems(JobAudit, "alerted", alerted)
	metrics.AddJobItems(JobAudit, "error", rep.Errors)
	if len(rep.Findings) > 0 {
		j.log.Warn().Int("flagged", len(rep.Findings)).Int("alerted", alerted).Msg("suspicious deactivations found")
	}
	return err
}
