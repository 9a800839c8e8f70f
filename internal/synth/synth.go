// Package synth runs one daily synthesis: recurring-todo materialization,
// calendar aggregation, weather lookup, assembly, narrative generation,
// and snapshot activation. Partial results always beat no snapshot; the
// only fatal outcome is being unable to persist at all.
package synth

import (
	"context"
	"fmt"
	"time"

	"daybrief/internal/agg"
	"daybrief/internal/assemble"
	"daybrief/internal/clock"
	"daybrief/internal/config"
	appLog "daybrief/internal/log"
	"daybrief/internal/model"
	"daybrief/internal/recurring"
	"daybrief/internal/store"
	"daybrief/internal/summarize"
)

// WeatherProvider is the forecast collaborator.
type WeatherProvider interface {
	Forecast(ctx context.Context, lat, lon float64, loc *time.Location) (*model.Weather, error)
}

// NarrativeProvider is the text-generation collaborator.
type NarrativeProvider interface {
	Summarize(ctx context.Context, date model.Date, payload model.SnapshotPayload) (*model.Narrative, error)
}

type Runner struct {
	cfg        *config.Config
	clk        *clock.Clock
	st         *store.Store
	aggregator *agg.Aggregator
	engine     *recurring.Engine
	weather    WeatherProvider   // nil when not configured
	narrator   NarrativeProvider // nil when not configured
}

func NewRunner(cfg *config.Config, clk *clock.Clock, st *store.Store, aggregator *agg.Aggregator,
	engine *recurring.Engine, weather WeatherProvider, narrator NarrativeProvider) *Runner {
	return &Runner{
		cfg:        cfg,
		clk:        clk,
		st:         st,
		aggregator: aggregator,
		engine:     engine,
		weather:    weather,
		narrator:   narrator,
	}
}

// RunOnce performs a full synthesis for the current local day and writes
// the resulting snapshot as the active one.
func (r *Runner) RunOnce(ctx context.Context) (*model.Snapshot, error) {
	now := r.clk.Now()
	today := r.clk.Today()

	appLog.Info("synthesis run starting", "date", today)

	// Materialize recurring todos first so fresh instances show up in the
	// open-todo listing below. A partial failure leaves the rest of the
	// run intact.
	if created, err := r.engine.Materialize(ctx, today); err != nil {
		appLog.Error("recurring materialization incomplete", err, "created", len(created))
	} else if len(created) > 0 {
		appLog.Info("recurring todos materialized", "count", len(created))
	}

	sources, err := r.st.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	windowStart, windowEnd := r.clk.Window(r.cfg.HorizonDays)

	// Weather runs alongside calendar aggregation; both are pure I/O with
	// no shared state.
	type weatherResult struct {
		w   *model.Weather
		err error
	}
	weatherCh := make(chan weatherResult, 1)
	go func() {
		if r.weather == nil {
			weatherCh <- weatherResult{}
			return
		}
		w, err := r.weather.Forecast(ctx, r.cfg.Weather.Lat, r.cfg.Weather.Lon, r.clk.Location())
		weatherCh <- weatherResult{w: w, err: err}
	}()

	report := r.aggregator.Aggregate(ctx, sources, windowStart, windowEnd)

	wr := <-weatherCh
	if wr.err != nil {
		appLog.Warn("weather lookup failed, snapshot proceeds without it", "err", wr.err)
	}

	todos, err := r.st.ListCurrentTodos(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	dinners, err := r.st.ListDinnerPlans(ctx, today, today.AddDays(r.cfg.DinnerDays))
	if err != nil {
		return nil, fmt.Errorf("list dinner plans: %w", err)
	}

	payload := assemble.Assemble(assemble.Input{
		Today:       today,
		Now:         now,
		Occurrences: report.Occurrences,
		Todos:       todos,
		Dinners:     dinners,
		Weather:     wr.w,
		DinnerDays:  r.cfg.DinnerDays,
	})

	narrative := r.generateNarrative(ctx, today, payload)

	snap, err := r.st.WriteAndActivateSnapshot(ctx, model.Snapshot{
		Date:        today,
		GeneratedAt: now,
		Payload:     payload,
		Narrative:   narrative,
	})
	if err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	appLog.Info("synthesis run complete",
		"date", today,
		"occurrences", len(report.Occurrences),
		"todos", len(payload.Todos),
		"failed_sources", len(report.SourceErrors),
		"narrative_failed", narrative != nil && narrative.Failed,
	)
	return snap, nil
}

// generateNarrative never blocks persistence: a missing narrator yields no
// narrative, a failing one yields the placeholder.
func (r *Runner) generateNarrative(ctx context.Context, today model.Date, payload model.SnapshotPayload) *model.Narrative {
	if r.narrator == nil {
		return nil
	}
	n, err := r.narrator.Summarize(ctx, today, payload)
	if err != nil {
		appLog.Warn("narrative generation failed, persisting degraded snapshot", "err", err)
		return summarize.FailedNarrative()
	}
	return n
}
