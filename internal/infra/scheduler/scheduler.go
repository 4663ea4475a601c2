package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/infra/metrics"
)

// Job is one periodic unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler runs Jobs on cron specs. Each run holds a distributed lock "job:<name>" so
// that only one replica executes a job at a time, and is bounded by timeout.
type Scheduler struct {
	cron    *cron.Cron
	locker  adapter.Locker
	timeout time.Duration
	now     func() time.Time
	log     *zerolog.Logger

	mu   sync.Mutex
	jobs map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler evaluating specs in loc. locker may be nil for single instance runs.
func New(loc *time.Location, locker adapter.Locker, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	l := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: &l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		locker:  locker,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		log:     &l,
		jobs:    map[string]Job{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job on a standard five field cron spec.
func (s *Scheduler) Add(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name()]; dup {
		return fmt.Errorf("job %q already scheduled", job.Name())
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %q (%s): %w", job.Name(), spec, err)
	}
	s.jobs[job.Name()] = job
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

// RunNow runs a registered job immediately, under the same lock as scheduled runs.
// It returns domain.ErrInProgress when another run holds the lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

func (s *Scheduler) run(parent context.Context, job Job) error {
	name := job.Name()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if s.locker != nil {
		key := "job:" + name
		token, err := s.locker.TryLock(ctx, key, s.timeout+time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrInProgress) {
				metrics.ObserveJob(name, "skipped", 0)
				s.log.Info().Str("job", name).Msg("job already running elsewhere; skipped")
			} else {
				metrics.ObserveJob(name, "error", 0)
				s.log.Error().Err(err).Str("job", name).Msg("job lock failed")
			}
			return err
		}
		defer func() {
			// the run context may be spent; release with a fresh one
			uctx, ucancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ucancel()
			if err := s.locker.Unlock(uctx, key, token); err != nil {
				s.log.Warn().Err(err).Str("job", name).Msg("job unlock failed")
			}
		}()
	}

	start := time.Now()
	err := job.Run(ctx, s.now())
	took := time.Since(start)
	if err != nil {
		metrics.ObserveJob(name, "error", took)
		s.log.Error().Err(err).Str("job", name).Dur("took", took).Msg("job failed")
		return err
	}
	metrics.ObserveJob(name, "ok", took)
	s.log.Info().Str("job", name).Dur("took", took).Msg("job finished")
	return nil
}

// Start begins firing jobs. Calling it twice has no effect.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing, cancels running jobs and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out; jobs still running")
	}
}

// cronLogger routes cron's own logging to zerolog.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error().Err(err).Fields(kv).Msg(msg)
}
