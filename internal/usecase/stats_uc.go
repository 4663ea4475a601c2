package usecase

import (
	"context"
	"time"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	ListPayments(ctx context.Context, f repository.PaymentStatusFilter) ([]*model.PaymentStatus, int, error)
	Stats(ctx context.Context, now time.Time) (*PaymentStats, error)
}

type PaymentStats struct {
	ByStatus            map[model.PaymentState]int
	ByPlan              map[model.PaymentPlan]int
	RevenueWeek         int64
	RevenueMonth        int64
	RevenueYear         int64
	PendingTransactions int
	DeactivatedLastWeek int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type statsUC struct {
	statuses repository.PaymentStatusRepository
	txs      repository.TransactionRepository
	users    repository.UserRepository

	log *zerolog.Logger
}

func NewStatsUseCase(statuses repository.PaymentStatusRepository, txs repository.TransactionRepository, users repository.UserRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{statuses: statuses, txs: txs, users: users, log: logger}
}

func (s *statsUC) ListPayments(ctx context.Context, f repository.PaymentStatusFilter) ([]*model.PaymentStatus, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.statuses.List(ctx, repository.NoTX, f)
}

func (s *statsUC) Stats(ctx context.Context, now time.Time) (*PaymentStats, error) {
	out := &PaymentStats{}
	var err error
	if out.ByStatus, err = s.statuses.CountByState(ctx, repository.NoTX); err != nil {
		return nil, err
	}
	if out.ByPlan, err = s.statuses.CountByPlan(ctx, repository.NoTX); err != nil {
		return nil, err
	}
	if out.RevenueWeek, err = s.txs.SumSuccessfulByPeriod(ctx, repository.NoTX, "week"); err != nil {
		return nil, err
	}
	if out.RevenueMonth, err = s.txs.SumSuccessfulByPeriod(ctx, repository.NoTX, "month"); err != nil {
		return nil, err
	}
	if out.RevenueYear, err = s.txs.SumSuccessfulByPeriod(ctx, repository.NoTX, "year"); err != nil {
		return nil, err
	}
	if out.PendingTransactions, err = s.txs.CountByStatus(ctx, repository.NoTX, model.TransactionPending); err != nil {
		return nil, err
	}
	if out.DeactivatedLastWeek, err = s.users.CountInactiveSince(ctx, repository.NoTX, now.Add(-7*24*time.Hour)); err != nil {
		return nil, err
	}
	return out, nil
}
