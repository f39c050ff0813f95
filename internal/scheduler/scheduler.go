// Package scheduler runs the recurring playlist refresh tasks: a fleet-wide
// regeneration every couple of hours, next-day pre-generation in the evening,
// a morning verification pass, and the daily campaign status sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fleetads/internal/metrics"
	"fleetads/internal/model"
	"fleetads/internal/playlist"
	"fleetads/internal/store"
)

// Options control the task cadence. Hours are UTC; nil hours pick the
// defaults, so midnight stays expressible.
type Options struct {
	Enabled         bool
	RefreshInterval time.Duration // fleet-wide refresh cadence
	PregenHour      *int          // next-day pre-generation, late evening
	MorningHour     *int          // morning verification pass
	TaskTimeout     time.Duration // per-run budget; the run itself is idempotent
}

func (o *Options) defaults() {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 2 * time.Hour
	}
	if o.PregenHour == nil {
		h := 23
		o.PregenHour = &h
	}
	if o.MorningHour == nil {
		h := 6
		o.MorningHour = &h
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 10 * time.Minute
	}
}

type task struct {
	name    string
	next    func(time.Time) time.Time
	run     func(context.Context) error
	running atomic.Bool

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time
}

func (t *task) setNext(at time.Time) {
	t.mu.Lock()
	t.nextRun = at
	t.mu.Unlock()
}

func (t *task) status() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := map[string]any{
		"running": t.running.Load(),
		"nextRun": t.nextRun.UTC().Format(time.RFC3339),
	}
	if !t.lastRun.IsZero() {
		st["lastRun"] = t.lastRun.UTC().Format(time.RFC3339)
	}
	return st
}

// Scheduler is an explicit service instance constructed at startup and handed
// to whatever needs to query or trigger it; there is no package-global state.
type Scheduler struct {
	gen   *playlist.Generator
	store store.Store
	log   *logrus.Logger
	opts  Options

	tasks     map[string]*task
	startedAt time.Time
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

func New(gen *playlist.Generator, st store.Store, log *logrus.Logger, opts Options) *Scheduler {
	opts.defaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{
		gen:   gen,
		store: st,
		log:   log,
		opts:  opts,
		tasks: map[string]*task{},
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	s.register("playlist_refresh", every(opts.RefreshInterval), s.refreshToday)
	s.register("daily_refresh", dailyAt(*opts.PregenHour), s.pregenTomorrow)
	s.register("morning_check", dailyAt(*opts.MorningHour), s.morningCheck)
	s.register("status_sweep", dailyAt(0), s.sweepStatuses)
	return s
}

func (s *Scheduler) register(name string, next func(time.Time) time.Time, run func(context.Context) error) {
	s.tasks[name] = &task{name: name, next: next, run: run}
}

// every aligns firings to wall-clock multiples of d, matching a */N cron.
func every(d time.Duration) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		return now.Truncate(d).Add(d)
	}
}

// dailyAt fires once per day at hour:00 UTC.
func dailyAt(hour int) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		now = now.UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// Start launches one timer loop per task. No-op when disabled.
func (s *Scheduler) Start() {
	if !s.opts.Enabled {
		s.log.Info("playlist scheduler disabled")
		return
	}
	s.startedAt = s.now()
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(t)
	}
	s.log.WithField("tasks", len(s.tasks)).Info("playlist scheduler started")
}

// Stop signals all timer loops to exit and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(t *task) {
	defer s.wg.Done()
	for {
		now := s.now()
		next := t.next(now)
		t.setNext(next)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.fire(t)
		}
	}
}

// fire runs the task in its own goroutine so a slow run never delays the
// timer loop. A tick whose predecessor is still in flight is skipped.
func (s *Scheduler) fire(t *task) {
	if !t.running.CompareAndSwap(false, true) {
		s.log.WithField("task", t.name).Warn("previous run still in flight, skipping tick")
		metrics.SchedulerRuns.WithLabelValues(t.name, "skipped").Inc()
		return
	}
	t.mu.Lock()
	t.lastRun = s.now()
	t.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("task", t.name).Errorf("task panicked: %v", r)
				metrics.SchedulerRuns.WithLabelValues(t.name, "panic").Inc()
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.TaskTimeout)
		defer cancel()
		if err := t.run(ctx); err != nil {
			s.log.WithField("task", t.name).WithError(err).Error("scheduled task failed")
			metrics.SchedulerRuns.WithLabelValues(t.name, "error").Inc()
			return
		}
		metrics.SchedulerRuns.WithLabelValues(t.name, "ok").Inc()
	}()
}

// RunTaskNow executes a named task synchronously. Used by tests and by the
// admin override endpoint.
func (s *Scheduler) RunTaskNow(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("task %q already running", name)
	}
	defer t.running.Store(false)
	return t.run(ctx)
}

func (s *Scheduler) refreshToday(ctx context.Context) error {
	sum, _, err := s.gen.GenerateForAllTrucks(ctx, s.now())
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"task": "playlist_refresh", "total": sum.Total, "successful": sum.Successful, "failed": sum.Failed}).
		Info("fleet playlists refreshed")
	return nil
}

func (s *Scheduler) pregenTomorrow(ctx context.Context) error {
	tomorrow := model.DayUTC(s.now()).AddDate(0, 0, 1)
	sum, _, err := s.gen.GenerateForAllTrucks(ctx, tomorrow)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"task": "daily_refresh", "date": tomorrow.Format("2006-01-02"), "total": sum.Total, "failed": sum.Failed}).
		Info("tomorrow's playlists generated")
	return nil
}

func (s *Scheduler) morningCheck(ctx context.Context) error {
	sum, _, err := s.gen.GenerateForAllTrucks(ctx, s.now())
	if err != nil {
		return err
	}
	st, err := s.gen.Stats(ctx)
	if err != nil {
		return err
	}
	if st.Pending > 0 {
		s.log.WithFields(logrus.Fields{"task": "morning_check", "pending": st.Pending}).
			Warn("playlists still awaiting push")
	}
	s.log.WithFields(logrus.Fields{"task": "morning_check", "total": sum.Total, "failed": sum.Failed}).
		Info("morning playlist check completed")
	return nil
}

func (s *Scheduler) sweepStatuses(ctx context.Context) error {
	live, expired, err := s.store.SweepCampaignStatuses(ctx, s.now())
	if err != nil {
		return err
	}
	if live > 0 || expired > 0 {
		s.log.WithFields(logrus.Fields{"task": "status_sweep", "live": live, "expired": expired}).
			Info("campaign statuses swept")
	}
	return nil
}

// TriggerRefresh runs a fleet-wide regeneration for date on demand.
func (s *Scheduler) TriggerRefresh(ctx context.Context, date time.Time) (playlist.Summary, []playlist.Result, error) {
	s.log.WithField("date", model.DayUTC(date).Format("2006-01-02")).Info("manual playlist refresh triggered")
	return s.gen.GenerateForAllTrucks(ctx, date)
}

// Status reports the scheduler's configuration and per-task state.
func (s *Scheduler) Status() map[string]any {
	tasks := map[string]any{}
	for name, t := range s.tasks {
		tasks[name] = t.status()
	}
	uptime := 0.0
	if !s.startedAt.IsZero() {
		uptime = s.now().Sub(s.startedAt).Seconds()
	}
	return map[string]any{
		"enabled":    s.opts.Enabled,
		"tasksCount": len(s.tasks),
		"uptime":     uptime,
		"tasks":      tasks,
	}
}
