//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/usecase"
)

func TestReminderUseCase_Run(t *testing.T) {
	ctx := context.Background()
	lead, cooldown := 3*24*time.Hour, 20*time.Hour

	newUC := func(deps *lifecycleTestDeps) usecase.ReminderUseCase {
		return usecase.NewReminderUseCase(deps.statuses, deps.users, deps.cohorts, deps.catalog, deps.notifier, lead, cooldown, 0, newTestLogger())
	}

	t.Run("should remind about an installment due soon", func(t *testing.T) {
		deps := newLifecycleDeps()
		deps.seed(t, userID, courseID, "cohort-mar", model.PlanFourInstallments, 2, model.StateBalanceHalfPayment)
		now := date(2025, time.April, 4)

		rep, err := newUC(deps).Run(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Candidates != 1 || rep.Sent != 1 {
			t.Fatalf("unexpected report %+v", rep)
		}
		n := deps.notifier.Sent[0]
		if n.Template != string(model.NotifyPaymentReminder) || n.To != "ada@example.com" {
			t.Errorf("unexpected notification %+v", n)
		}
		if n.Data["InstallmentNumber"] != 3 || n.Data["Amount"] != int64(85000) || n.Data["Overdue"] != false {
			t.Errorf("unexpected payload %v", n.Data)
		}
		if n.Data["CourseTitle"] != "Data Analytics" {
			t.Errorf("expected the course title, got %v", n.Data["CourseTitle"])
		}
		in := deps.statuses.Get(userID, courseID).Installment(3)
		if in.LastReminderSent == nil || !in.LastReminderSent.Equal(now) {
			t.Errorf("expected the reminder to be recorded, got %v", in.LastReminderSent)
		}
	})

	t.Run("should respect the cooldown", func(t *testing.T) {
		deps := newLifecycleDeps()
		deps.seed(t, userID, courseID, "cohort-mar", model.PlanFourInstallments, 2, model.StateBalanceHalfPayment)
		uc := newUC(deps)
		now := date(2025, time.April, 4)

		if _, err := uc.Run(ctx, now); err != nil {
			t.Fatal(err)
		}
		rep, _ := uc.Run(ctx, now.Add(5*time.Hour))
		if rep.Sent != 0 || rep.Skipped != 1 {
			t.Errorf("expected a skip inside the cooldown, got %+v", rep)
		}
		rep, _ = uc.Run(ctx, now.Add(cooldown))
		if rep.Sent != 1 {
			t.Errorf("expected a reminder after the cooldown, got %+v", rep)
		}
	})

	t.Run("should keep reminding about overdue installments", func(t *testing.T) {
		deps := newLifecycleDeps()
		deps.seed(t, userID, courseID, "cohort-mar", model.PlanFourInstallments, 2, model.StateBalanceHalfPayment)

		rep, _ := newUC(deps).Run(ctx, date(2025, time.April, 10))
		if rep.Sent != 1 || deps.notifier.Sent[0].Data["Overdue"] != true {
			t.Errorf("expected an overdue reminder, got %+v", rep)
		}
	})

	t.Run("should not remind about installments outside the lead time", func(t *testing.T) {
		deps := newLifecycleDeps()
		deps.seed(t, userID, courseID, "cohort-mar", model.PlanFourInstallments, 2, model.StateBalanceHalfPayment)

		rep, _ := newUC(deps).Run(ctx, date(2025, time.March, 25))
		if rep.Candidates != 0 || len(deps.notifier.Sent) != 0 {
			t.Errorf("expected nothing, got %+v", rep)
		}
	})

	t.Run("should remind about the half plan balance", func(t *testing.T) {
		deps := newLifecycleDeps()
		ps := deps.seed(t, userID, courseID, "cohort-mar", model.PlanFirstHalfComplete, 0, model.StateBalanceHalfPayment)
		due := date(2025, time.April, 10)
		ps.SecondPaymentDueDate = &due
		_, _ = deps.statuses.UpdateState(ctx, nil, ps)
		now := date(2025, time.April, 8)

		rep, _ := newUC(deps).Run(ctx, now)
		if rep.Sent != 1 {
			t.Fatalf("expected one reminder, got %+v", rep)
		}
		if got := deps.notifier.Sent[0].Data["Amount"]; got != int64(125000) {
			t.Errorf("expected the balance amount, got %v", got)
		}
		stored := deps.statuses.Get(userID, courseID)
		if stored.LastReminderSent == nil || !stored.LastReminderSent.Equal(now) {
			t.Errorf("expected the balance reminder to be recorded, got %v", stored.LastReminderSent)
		}
	})

	t.Run("should retry when delivery fails", func(t *testing.T) {
		deps := newLifecycleDeps()
		deps.seed(t, userID, courseID, "cohort-mar", model.PlanFourInstallments, 2, model.StateBalanceHalfPayment)
		deps.notifier.SendFunc = func(ctx context.Context, n adapter.Notification) error {
			return errors.New("smtp: 421 try again later")
		}

		rep, _ := newUC(deps).Run(ctx, date(2025, time.April, 4))
		if rep.Errors != 1 || rep.Sent != 0 {
			t.Errorf("unexpected report %+v", rep)
		}
		if in := deps.statuses.Get(userID, courseID).Installment(3); in.LastReminderSent != nil {
			t.Error("expected no reminder to be recorded")
		}
	})
}
