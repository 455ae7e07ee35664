package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"botmon/internal/task/engine"
	logx "botmon/pkg/logx"
)

var ErrOverlapSkip = errors.New("schedule skipped: previous run still in flight")

func New(cfg Config, eng Enqueuer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		engine: eng,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*scheduleDef{},
	}
}

// Apply swaps the config. A timezone change restarts cron with every
// registered schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	s.c.Stop()
	s.startLocked()
}

func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// AddSchedule registers or replaces the schedule called name. An empty
// schedule string removes it.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("schedule name required")
	}
	if job == nil {
		return errors.New("schedule job required")
	}
	if strings.TrimSpace(schedule) == "" {
		s.Remove(name)
		return nil
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	d := &scheduleDef{name: name, timeout: timeout, job: job, busy: &atomic.Bool{}}
	switch ps.Kind {
	case SpecCron:
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		d.spec = ps.Cron
	case SpecInterval:
		d.every = ps.Every
		d.spec = "@every " + ps.Every.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs[name] = d
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", d.spec), logx.Duration("timeout", timeout))
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	var (
		id  cron.EntryID
		err error
	)
	if d.every > 0 {
		sched, jitter := intervalWithSpread(d.every, time.Now())
		id = s.c.Schedule(sched, s.trigger(d))
		s.log.Debug("interval startup spread", logx.String("name", d.name), logx.Duration("jitter", jitter))
	} else {
		id, err = s.c.AddJob(d.spec, s.trigger(d))
	}
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) trigger(d *scheduleDef) cron.Job {
	return cron.FuncJob(func() {
		if !d.busy.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			s.log.Debug("schedule trigger skipped", logx.String("schedule", d.name), logx.Err(ErrOverlapSkip))
			return
		}
		err := s.engine.Enqueue(engine.Task{
			Name:    "schedule." + d.name,
			Timeout: d.timeout,
			Run: func(ctx context.Context) error {
				defer d.busy.Store(false)
				return d.job(ctx)
			},
		})
		if err != nil {
			d.busy.Store(false)
			s.failed.Add(1)
			s.log.Warn("schedule failed to enqueue task", logx.String("schedule", d.name), logx.Err(err))
		}
	})
}

// RunNow enqueues the named schedule immediately, honoring the overlap rule.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if ok {
		s.trigger(d).Run()
	}
	return ok
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Running:  s.c != nil,
		Timezone: strings.TrimSpace(s.cfg.Timezone),
		Skipped:  s.skipped.Load(),
		Failed:   s.failed.Load(),
	}
	if s.loc != nil && snap.Timezone == "" {
		snap.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}
