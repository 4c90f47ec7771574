package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Schedule maps sweep names to cron specs ("minute hour dom month dow").
type Schedule map[string]string

// DefaultSchedule runs expiry shortly after midnight and the reminders in the
// morning, all in UTC.
func DefaultSchedule() Schedule {
	return Schedule{
		SweepExpire:    "5 0 * * *",
		SweepAvailable: "0 8 * * *",
		SweepDueSoon:   "10 8 * * *",
		SweepOverdue:   "20 8 * * *",
	}
}

// Scheduler triggers sweeps on their cron schedules. Overlapping runs of the
// same sweep are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	log     logrus.FieldLogger
	timeout time.Duration
	entries map[string]cron.EntryID
}

// NewScheduler registers every sweep in schedule. Each run gets its own
// context bounded by timeout.
func NewScheduler(sweeper *Sweeper, schedule Schedule, timeout time.Duration, log logrus.FieldLogger) (*Scheduler, error) {
	log = log.WithField("component", "scheduler")
	cronLog := cron.PrintfLogger(log)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		sweeper: sweeper,
		log:     log,
		timeout: timeout,
		entries: make(map[string]cron.EntryID),
	}

	for name := range schedule {
		if !known(name) {
			return nil, fmt.Errorf("unknown sweep %q in schedule", name)
		}
	}
	for _, name := range Names() {
		spec, ok := schedule[name]
		if !ok || spec == "" {
			continue
		}
		name := name
		job := cron.NewChain(cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() { s.run(name) }))
		id, err := s.cron.AddJob(spec, job)
		if err != nil {
			return nil, fmt.Errorf("schedule %s sweep %q: %w", name, spec, err)
		}
		s.entries[name] = id
		s.log.WithFields(logrus.Fields{"sweep": name, "spec": spec}).Debug("sweep scheduled")
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
}

// Stop prevents new runs and waits for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Next returns the next activation time of each scheduled sweep. Times are
// zero until Start is called.
func (s *Scheduler) Next() map[string]time.Time {
	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

func (s *Scheduler) run(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	// errors are logged by the sweeper
	_, _ = s.sweeper.Run(ctx, name)
}

func known(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}
