package synth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"daybrief/internal/clock"
	appLog "daybrief/internal/log"
	"daybrief/internal/model"
	"daybrief/internal/store"
)

// ShouldRun is the pure once-per-day trigger decision: a run is due when
// the local wall clock has passed generateAfter ("HH:MM") and no run has
// been recorded for the current local date. lastRun is explicit state
// passed in, so the decision is a function of its inputs.
func ShouldRun(lastRun model.Date, now time.Time, generateAfter string) bool {
	today := model.DateOf(now)

	if !lastRun.IsZero() && !lastRun.Before(today) {
		return false
	}

	after, err := time.Parse("15:04", generateAfter)
	if err != nil {
		// Config validation rejects malformed values; fall back to 04:00
		// if one slips through.
		after, _ = time.Parse("15:04", "04:00")
	}
	threshold := time.Date(now.Year(), now.Month(), now.Day(), after.Hour(), after.Minute(), 0, 0, now.Location())
	return !now.Before(threshold)
}

// Scheduler polls the trigger guard on a cron schedule and runs the daily
// synthesis when it fires, persisting the last-run date through the
// settings store.
type Scheduler struct {
	runner        *Runner
	st            *store.Store
	clk           *clock.Clock
	generateAfter string
	cron          *cron.Cron
}

func NewScheduler(runner *Runner, st *store.Store, clk *clock.Clock, checkCron, generateAfter string) (*Scheduler, error) {
	s := &Scheduler{
		runner:        runner,
		st:            st,
		clk:           clk,
		generateAfter: generateAfter,
		cron:          cron.New(cron.WithLocation(clk.Location())),
	}

	if _, err := s.cron.AddFunc(checkCron, func() {
		s.tick(context.Background())
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	appLog.Info("synthesis scheduler started", "generate_after", s.generateAfter)
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// tick checks the guard and runs synthesis at most once per local day.
// The persisted last-run date is the primary defense against double runs;
// the recurring engine's watermark is the correctness backstop.
func (s *Scheduler) tick(ctx context.Context) {
	lastRun, err := s.lastRunDate(ctx)
	if err != nil {
		appLog.Error("trigger state read failed", err)
		return
	}

	now := s.clk.Now()
	if !ShouldRun(lastRun, now, s.generateAfter) {
		return
	}

	if _, err := s.runner.RunOnce(ctx); err != nil {
		// Abandoned; the guard stays unset so the next tick retries.
		appLog.Error("scheduled synthesis failed", err)
		return
	}

	if err := s.st.SetSetting(ctx, store.SettingLastRunDate, s.clk.Today().String()); err != nil {
		appLog.Error("persisting last-run date failed", err)
	}
}

func (s *Scheduler) lastRunDate(ctx context.Context) (model.Date, error) {
	raw, err := s.st.Setting(ctx, store.SettingLastRunDate)
	if err != nil {
		return model.Date{}, err
	}
	if raw == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		// Corrupt state: treat as never run rather than wedging the
		// scheduler.
		appLog.Warn("unparseable last-run date, treating as unset", "value", raw)
		return model.Date{}, nil
	}
	return d, nil
}
