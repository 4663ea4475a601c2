//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
)

func TestTransactionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	logger := zerolog.Nop()
	repo := NewTransactionRepo(testPool, &logger)

	newTx := func(id, ref string, created time.Time) *model.PaystackTransaction {
		return &model.PaystackTransaction{
			ID: id, UserID: "u1", CourseID: "c1", Reference: ref,
			Status: model.TransactionPending, Amount: 30000, Currency: "NGN",
			Metadata: model.TransactionMetadata{
				UserID: "u1", CourseID: "c1", PaymentPlan: model.PlanFourInstallments, InstallmentNumber: 1,
			},
			AuthorizationURL: "https://checkout.paystack.com/" + ref,
			CreatedAt:        created,
		}
	}

	t.Run("should save and find by reference", func(t *testing.T) {
		seedBase(t)
		if err := repo.Save(ctx, nil, newTx("t1", "cp_1", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
		if err := repo.Save(ctx, nil, newTx("t2", "cp_1", time.Now().UTC())); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists for a duplicate reference, got %v", err)
		}

		got, err := repo.FindByReference(ctx, nil, "cp_1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Metadata.PaymentPlan != model.PlanFourInstallments || got.Metadata.InstallmentNumber != 1 {
			t.Errorf("metadata did not round trip: %+v", got.Metadata)
		}
		if _, err := repo.FindByReference(ctx, nil, "cp_missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should settle a pending transaction once", func(t *testing.T) {
		seedBase(t)
		if err := repo.Save(ctx, nil, newTx("t1", "cp_1", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
		paidAt := time.Now().UTC()
		won, err := repo.UpdateStatusIfPending(ctx, nil, "t1", model.TransactionSuccess, "Approved", &paidAt)
		if err != nil || !won {
			t.Fatalf("expected the update, got %v / %v", won, err)
		}
		won, err = repo.UpdateStatusIfPending(ctx, nil, "t1", model.TransactionFailed, "Declined", nil)
		if err != nil || won {
			t.Fatalf("expected no second update, got %v / %v", won, err)
		}

		sum, err := repo.SumSuccessfulByPeriod(ctx, nil, "month")
		if err != nil || sum != 30000 {
			t.Errorf("expected 30000 this month, got %d (%v)", sum, err)
		}
		if _, err := repo.SumSuccessfulByPeriod(ctx, nil, "fortnight; DROP TABLE users"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should find reusable and stale pending transactions", func(t *testing.T) {
		seedBase(t)
		now := time.Now().UTC()
		_ = repo.Save(ctx, nil, newTx("old", "cp_old", now.Add(-2*time.Hour)))
		_ = repo.Save(ctx, nil, newTx("new", "cp_new", now.Add(-5*time.Minute)))

		got, err := repo.FindReusablePending(ctx, nil, "u1", "c1", now.Add(-30*time.Minute))
		if err != nil || got.Reference != "cp_new" {
			t.Errorf("expected cp_new, got %+v (%v)", got, err)
		}
		stale, err := repo.ListPendingOlderThan(ctx, nil, now.Add(-30*time.Minute), 10)
		if err != nil || len(stale) != 1 || stale[0].Reference != "cp_old" {
			t.Errorf("expected cp_old, got %+v (%v)", stale, err)
		}
		n, err := repo.CountByStatus(ctx, nil, model.TransactionPending)
		if err != nil || n != 2 {
			t.Errorf("expected 2 pending, got %d (%v)", n, err)
		}
	})
}
