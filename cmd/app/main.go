package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/config"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
	"course-payments/internal/infra/adapters/email"
	payAdapters "course-payments/internal/infra/adapters/payment"
	"course-payments/internal/infra/api"
	pg "course-payments/internal/infra/db/postgres"
	"course-payments/internal/infra/logging"
	"course-payments/internal/infra/metrics"
	red "course-payments/internal/infra/redis"
	"course-payments/internal/infra/sched"
	"course-payments/internal/infra/scheduler"
	"course-payments/internal/infra/worker"
	"course-payments/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, noop gateway without a paystack key")
	mintFor := flag.String("mint-admin-token", "", "print an admin JWT for the given subject and exit")
	noCron := flag.Bool("no-scheduler", false, "serve HTTP only; jobs can still be run from the admin API")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	auth := api.NewAuthManager(cfg.Admin.JWTSecret, 12*time.Hour)
	if *mintFor != "" {
		tok, err := auth.Mint(*mintFor)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, auth, !*noCron, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

func run(cfg *config.Config, auth *api.AuthManager, withCron bool, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting course payments")

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logging.Component(logger, "db"))

	// ---- Repositories ----
	var cohortRepo repository.CohortRepository = pg.NewCohortRepo(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	userCohortRepo := pg.NewUserCohortRepo(pool)
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool)
	statusRepo := pg.NewPaymentStatusRepo(pool)
	txRepo := pg.NewTransactionRepo(pool, logger)
	notifLogRepo := pg.NewNotificationLogRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		locker  adapter.Locker
		limiter adapter.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
		cohortRepo = pg.NewCohortRepoCacheDecorator(cohortRepo, redisClient, cfg.Redis.TTL, logger)
	} else {
		logger.Warn().Msg("redis not configured: no distributed locks, rate limits or cohort cache")
	}

	// ---- Gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Paystack.SecretKey == "" {
		logger.Warn().Msg("paystack secret key missing: using the noop gateway")
		gateway = payAdapters.NewNoopPaymentGateway("")
	} else {
		pgw, err := payAdapters.NewPaystackGateway(cfg.Paystack.SecretKey, cfg.Paystack.BaseURL)
		if err != nil {
			return fmt.Errorf("paystack gateway: %w", err)
		}
		gateway = pgw
	}

	// ---- Notifications ----
	var deliver adapter.Notifier
	if cfg.SMTP.Host != "" {
		deliver = email.NewSMTPNotifier(cfg.SMTP, logger)
	} else {
		logger.Warn().Msg("smtp not configured: notifications are logged only")
		deliver = email.NewLogNotifier(cfg.SMTP.AppName, logger)
	}
	mailPool := worker.NewPool(2, 256, logger)
	mailPool.Start(context.Background())
	defer mailPool.Stop()
	notifier := email.NewAsyncNotifier(deliver, mailPool)

	// ---- Use cases ----
	catalog := model.NewCatalog(model.PlanAmounts{
		Full:   cfg.Pricing.Full,
		Half:   cfg.Pricing.Half,
		Three:  cfg.Pricing.Three,
		Four:   cfg.Pricing.Four,
		Anchor: cfg.Billing.CohortAnchorDay,
	})
	policy := model.GracePolicy{
		PreStart: cfg.Billing.GracePreStart,
		MidPlan:  cfg.Billing.GraceMidPlan,
		Final:    cfg.Billing.GraceFinal,
		NoCohort: cfg.Billing.GraceNoCohort,
	}

	paymentUC := usecase.NewPaymentUseCase(usecase.PaymentDeps{
		Statuses:    statusRepo,
		Txs:         txRepo,
		Cohorts:     cohortRepo,
		UserCohorts: userCohortRepo,
		Purchases:   purchaseRepo,
		Users:       userRepo,
		Gateway:     gateway,
		Notifier:    notifier,
		Locker:      locker,
		Limiter:     limiter,
		TM:          tm,
		Catalog:     catalog,
	}, usecase.PaymentConfig{
		Currency:           cfg.Paystack.Currency,
		CallbackURL:        cfg.Paystack.CallbackURL,
		PendingReuseWindow: cfg.Billing.PendingReuseWindow,
		InitiateRateLimit:  cfg.Billing.InitiateRateLimit,
		SweepBatchSize:     cfg.Billing.SweepBatchSize,
		LockWait:           cfg.Billing.InitiateLockWait,
		AlertEmail:         cfg.Admin.AlertEmail,
	}, logger)
	deactivationUC := usecase.NewDeactivationUseCase(statusRepo, userRepo, cohortRepo, userCohortRepo, notifLogRepo, tm, notifier, policy, cfg.Billing.SweepBatchSize, logger)
	auditUC := usecase.NewAuditUseCase(statusRepo, userRepo, cohortRepo, notifLogRepo, notifier, cfg.Admin.AlertEmail, cfg.Billing.AuditWindow, logger)
	reminderUC := usecase.NewReminderUseCase(statusRepo, userRepo, cohortRepo, catalog, notifier, cfg.Billing.ReminderLead, cfg.Billing.ReminderCooldown, cfg.Billing.SweepBatchSize, logger)
	statsUC := usecase.NewStatsUseCase(statusRepo, txRepo, userRepo, logging.Component(logger, "stats_uc"))

	// ---- Scheduler ----
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	sch := scheduler.New(loc, locker, cfg.Scheduler.JobTimeout, logger)
	for _, j := range []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Scheduler.ExpiryCron, sched.NewExpiryJob(paymentUC, logger)},
		{cfg.Scheduler.ReminderCron, sched.NewReminderJob(reminderUC, logger)},
		{cfg.Scheduler.DeactivationCron, sched.NewDeactivationJob(deactivationUC, logger)},
		{cfg.Scheduler.AuditCron, sched.NewAuditJob(auditUC, logger)},
	} {
		if err := sch.Add(j.spec, j.job); err != nil {
			return fmt.Errorf("schedule %s: %w", j.job.Name(), err)
		}
	}
	if withCron {
		sch.Start()
	}

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Payments: paymentUC,
		Stats:    statsUC,
		Auth:     auth,
		Jobs:     sch,
		Ready:    func(ctx context.Context) error { return pool.Ping(ctx) },
	}, api.Options{
		FrontendURL:    cfg.HTTP.FrontendURL,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, logger)
	httpServer := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTP.Port), srv.Routes())

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	sch.Stop(shutdownCtx)
	return nil
}
