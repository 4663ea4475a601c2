//go:build !integration

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain"
)

type fakeJob struct {
	name string
	err  error
	runs int
	at   time.Time
}

func (j *fakeJob) Name() string { return j.name }
func (j *fakeJob) Run(ctx context.Context, now time.Time) error {
	j.runs++
	j.at = now
	return j.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrInProgress
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.unlocked = append(l.unlocked, key)
	}
	return nil
}

func newTestScheduler(locker *fakeLocker) *Scheduler {
	logger := zerolog.Nop()
	s := New(time.UTC, locker, time.Minute, &logger)
	s.now = func() time.Time { return time.Date(2025, time.April, 21, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestScheduler_RunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("should run under the job lock and release it", func(t *testing.T) {
		locker := &fakeLocker{held: map[string]string{}}
		s := newTestScheduler(locker)
		job := &fakeJob{name: "deactivation"}
		if err := s.Add("0 0 * * *", job); err != nil {
			t.Fatal(err)
		}

		if err := s.RunNow(ctx, "deactivation"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.runs != 1 || !job.at.Equal(time.Date(2025, time.April, 21, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected run %d at %s", job.runs, job.at)
		}
		if len(locker.unlocked) != 1 || locker.unlocked[0] != "job:deactivation" {
			t.Errorf("expected job:deactivation to be released, got %v", locker.unlocked)
		}
	})

	t.Run("should skip while another run holds the lock", func(t *testing.T) {
		locker := &fakeLocker{held: map[string]string{"job:audit": "someone-else"}}
		s := newTestScheduler(locker)
		job := &fakeJob{name: "audit"}
		_ = s.Add("0 3 * * 1", job)

		if err := s.RunNow(ctx, "audit"); !errors.Is(err, domain.ErrInProgress) {
			t.Fatalf("expected ErrInProgress, got %v", err)
		}
		if job.runs != 0 {
			t.Error("job must not run without the lock")
		}
	})

	t.Run("should surface job errors and still release", func(t *testing.T) {
		locker := &fakeLocker{held: map[string]string{}}
		s := newTestScheduler(locker)
		boom := errors.New("db down")
		_ = s.Add("@hourly", &fakeJob{name: "expiry", err: boom})

		if err := s.RunNow(ctx, "expiry"); !errors.Is(err, boom) {
			t.Fatalf("expected the job error, got %v", err)
		}
		if len(locker.held) != 0 {
			t.Errorf("lock leaked: %v", locker.held)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newTestScheduler(&fakeLocker{held: map[string]string{}})
		if err := s.RunNow(ctx, "nope"); !errors.Is(err, ErrUnknownJob) {
			t.Errorf("expected ErrUnknownJob, got %v", err)
		}
	})

	t.Run("nil locker runs directly", func(t *testing.T) {
		logger := zerolog.Nop()
		s := New(nil, nil, 0, &logger)
		job := &fakeJob{name: "reminder"}
		_ = s.Add("0 9 * * *", job)
		if err := s.RunNow(ctx, "reminder"); err != nil || job.runs != 1 {
			t.Errorf("expected one run, got %d (%v)", job.runs, err)
		}
	})
}

func TestScheduler_Add(t *testing.T) {
	s := newTestScheduler(&fakeLocker{held: map[string]string{}})

	if err := s.Add("not a spec", &fakeJob{name: "bad"}); err == nil {
		t.Error("expected an invalid spec to be rejected")
	}
	if err := s.Add("0 0 * * *", &fakeJob{name: "deactivation"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("0 1 * * *", &fakeJob{name: "deactivation"}); err == nil {
		t.Error("expected a duplicate name to be rejected")
	}
	if got := s.Jobs(); len(got) != 1 {
		t.Errorf("expected one job, got %v", got)
	}

	s.Start()
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(stopCtx)
}
