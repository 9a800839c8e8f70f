// Package agg merges occurrences from all configured calendar feeds into
// one deterministic, deduplicated schedule for the synthesis window.
package agg

import (
	"context"
	"sort"
	"strings"
	"time"

	"daybrief/internal/ics"
	appLog "daybrief/internal/log"
	"daybrief/internal/model"
)

// FeedFetcher is the slice of the feed fetcher the aggregator needs.
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []model.CalendarSource) ([]ics.FetchResult, []*ics.SourceError)
}

// Report is the outcome of one aggregation pass. Source-level failures are
// carried alongside the result rather than aborting it.
type Report struct {
	Occurrences []model.Occurrence

	// SourceErrors lists feeds that could not be fetched or parsed. Their
	// occurrences are simply absent.
	SourceErrors []*ics.SourceError

	// SkippedSeries lists recurring series dropped due to malformed rules.
	SkippedSeries []string
}

// Aggregator expands, filters, and deduplicates events across feeds.
type Aggregator struct {
	fetcher FeedFetcher
	loc     *time.Location
}

func New(fetcher FeedFetcher, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{fetcher: fetcher, loc: loc}
}

// Aggregate fetches every source, expands recurrences into [windowStart,
// windowEnd], drops occurrences the source owner declined, deduplicates
// across sources, and returns occurrences sorted by start instant (ties by
// normalized title). A failed source omits its occurrences and is reported
// on the Report; it never aborts the other sources.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.CalendarSource, windowStart, windowEnd time.Time) Report {
	var report Report

	results, fetchErrs := a.fetcher.FetchAll(ctx, sources)
	report.SourceErrors = append(report.SourceErrors, fetchErrs...)

	var all []model.Occurrence
	for _, res := range results {
		events, err := ics.Parse(res.Source, res.Body)
		if err != nil {
			report.SourceErrors = append(report.SourceErrors, &ics.SourceError{Source: res.Source, Err: err})
			continue
		}

		expanded, err := ics.Expand(events, ics.ExpandConfig{
			DisplayLocation: a.loc,
			RangeStart:      windowStart,
			RangeEnd:        windowEnd,
		})
		if err != nil {
			report.SourceErrors = append(report.SourceErrors, &ics.SourceError{Source: res.Source, Err: err})
			continue
		}
		report.SkippedSeries = append(report.SkippedSeries, expanded.SkippedSeries...)

		for _, occ := range expanded.Occurrences {
			if isDeclinedByOwner(occ, res.Source.OwnerEmail) {
				appLog.Debug("dropping declined occurrence", "title", occ.Title, "source", res.Source.Label)
				continue
			}
			all = append(all, occ)
		}
	}

	report.Occurrences = dedupe(all, sources)
	sortOccurrences(report.Occurrences)

	if len(report.SourceErrors) > 0 {
		appLog.Warn("aggregation degraded", "failed_sources", len(report.SourceErrors), "occurrences", len(report.Occurrences))
	}
	return report
}

// isDeclinedByOwner reports whether the source owner's recorded
// participation is declined. Absence of a recorded status counts as
// attending; events whose status is unknown are never hidden.
func isDeclinedByOwner(occ model.Occurrence, ownerEmail string) bool {
	if ownerEmail == "" {
		return false
	}
	return occ.StatusFor(ownerEmail) == model.ParticipationDeclined
}

// dedupe collapses occurrences from different sources that share a
// normalized title and starts within a minute of each other (feed exports
// round start times differently). The survivor comes from the source
// listed first in configuration; same-source duplicates are left alone.
func dedupe(occs []model.Occurrence, sources []model.CalendarSource) []model.Occurrence {
	position := make(map[int64]int, len(sources))
	for _, src := range sources {
		position[src.ID] = src.Position
	}

	keptByTitle := make(map[string][]int)
	kept := make([]model.Occurrence, 0, len(occs))
	alive := make([]bool, 0, len(occs))

	for _, occ := range occs {
		title := normalizeTitle(occ.Title)
		dropped := false

		for _, idx := range keptByTitle[title] {
			other := kept[idx]
			if !alive[idx] || other.SourceID == occ.SourceID {
				continue
			}
			if !startsMatch(occ.Start, other.Start) {
				continue
			}
			// Same logical event seen through two feeds. Deterministic
			// tie-break: lowest configured position wins.
			if position[occ.SourceID] < position[other.SourceID] {
				alive[idx] = false
			} else {
				dropped = true
			}
			break
		}

		if dropped {
			continue
		}
		kept = append(kept, occ)
		alive = append(alive, true)
		keptByTitle[title] = append(keptByTitle[title], len(kept)-1)
	}

	out := make([]model.Occurrence, 0, len(kept))
	for i, occ := range kept {
		if alive[i] {
			out = append(out, occ)
		}
	}
	return out
}

// startsMatch compares starts at minute tolerance.
func startsMatch(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= time.Minute
}

// normalizeTitle lowercases and collapses runs of whitespace.
func normalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

func sortOccurrences(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return normalizeTitle(occs[i].Title) < normalizeTitle(occs[j].Title)
	})
}
