package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// notificationSender delivers notifications best effort: failures are logged, never returned.
type notificationSender struct {
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func (s notificationSender) send(ctx context.Context, n adapter.Notification) bool {
	if s.notifier == nil || n.To == "" || n.Template == "" {
		return false
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("template", n.Template).Msg("notification failed")
		return false
	}
	return true
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("January 2, 2006")
}

// noticeData is the common template payload for a user and course.
func noticeData(user *model.User, course *model.Course) map[string]any {
	d := map[string]any{}
	if user != nil {
		d["Name"] = user.DisplayName()
		d["Email"] = user.Email
	}
	if course != nil {
		d["CourseTitle"] = course.Title
	}
	return d
}

func (u *paymentUC) sendPaymentNotice(ctx context.Context, out *VerifyOutcome) {
	if out.Notify == model.NotifyNone || out.PaymentStatus == nil {
		return
	}
	ps, t := out.PaymentStatus, out.Transaction
	user, err := u.Users.FindByID(ctx, repository.NoTX, ps.UserID)
	if err != nil {
		u.log.Warn().Err(err).Msg("notification skipped: user lookup failed")
		return
	}
	course, _ := u.Cohorts.FindCourse(ctx, repository.NoTX, ps.CourseID)

	data := noticeData(user, course)
	data["Plan"] = string(ps.Plan)
	data["Amount"] = t.Amount
	data["Currency"] = t.Currency
	data["InstallmentNumber"] = t.Metadata.InstallmentNumber
	data["Reference"] = t.Reference
	view := u.statusView(ps)
	data["AmountPaid"] = view.AmountPaid
	data["Total"] = view.Total
	if view.NextNumber > 0 {
		data["NextInstallment"] = view.NextNumber
		data["NextAmount"] = view.NextAmount
		data["NextDueDate"] = dateString(view.NextDueDate)
	}

	u.notify.send(ctx, adapter.Notification{
		Template: string(out.Notify),
		To:       user.Email,
		Data:     data,
	})
}
