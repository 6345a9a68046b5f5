package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// DelayFunc returns how long Loop waits after a run
type DelayFunc func() time.Duration

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	log      *zap.SugaredLogger
	timeout  time.Duration
}

// New creates a new scheduler with the given timezone
func New(timezone string, log *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	return NewInLocation(loc, log), nil
}

// NewInLocation creates a new scheduler running cron schedules in loc
func NewInLocation(loc *time.Location, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		log:      log.Named("scheduler").Sugar(),
		timeout:  30 * time.Minute,
	}
}

// AddJob adds a job with a cron schedule.
// schedule format: "0 7 * * *" or a descriptor such as "@every 5m"
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.run(ctx, name, job)
	})

	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Infow("added job", "job", name, "schedule", schedule)

	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job and returns its error
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Infow("running job now", "job", name)
	return job(ctx)
}

// Loop runs job, waits delay(), and repeats until ctx is done. Job errors
// are logged and do not stop the loop.
func (s *Scheduler) Loop(ctx context.Context, name string, delay DelayFunc, job Job) error {
	for {
		s.run(ctx, name, job)

		wait := delay()
		s.log.Infow("sleeping", "job", name, "delay", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	s.log.Infow("starting job", "job", name)
	start := time.Now()

	if err := job(ctx); err != nil {
		s.log.Errorw("job failed", "job", name, "error", err)
	} else {
		s.log.Infow("job completed", "job", name, "elapsed", time.Since(start))
	}
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// Between draws one duration uniformly from [min, max)
func Between(min, max time.Duration, rng *rand.Rand) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
