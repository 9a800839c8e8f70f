// Package assemble shapes fetched data into a snapshot payload. It is a
// pure transformation: no network and no persistence.
package assemble

import (
	"sort"
	"time"

	"daybrief/internal/model"
)

// completedVisibleFor is how long a completed todo stays listed after its
// completion instant.
const completedVisibleFor = 24 * time.Hour

// Input is everything a synthesis run has gathered for one snapshot.
type Input struct {
	Today model.Date
	Now   time.Time

	Occurrences []model.Occurrence
	Todos       []model.Todo
	Dinners     []model.DinnerPlan
	Weather     *model.Weather

	// DinnerDays is the forward inclusion window for dinner plans.
	// Zero means 7.
	DinnerDays int
}

// Assemble merges the gathered data into a serializable payload:
//
//   - occurrences grouped by their local calendar date
//   - todos filtered by the completed-visibility and reminder-window rules
//   - dinner plans limited to the forward window
func Assemble(in Input) model.SnapshotPayload {
	dinnerDays := in.DinnerDays
	if dinnerDays <= 0 {
		dinnerDays = 7
	}

	return model.SnapshotPayload{
		Days:    groupByDay(in.Occurrences),
		Todos:   filterTodos(in.Todos, in.Today, in.Now),
		Dinners: filterDinners(in.Dinners, in.Today, dinnerDays),
		Weather: in.Weather,
	}
}

// groupByDay buckets occurrences by their start date, keeping day order
// ascending and each day's occurrence order as given.
func groupByDay(occs []model.Occurrence) []model.DaySchedule {
	byDate := make(map[model.Date][]model.Occurrence)
	for _, occ := range occs {
		d := model.DateOf(occ.Start)
		byDate[d] = append(byDate[d], occ)
	}

	days := make([]model.DaySchedule, 0, len(byDate))
	for d, list := range byDate {
		days = append(days, model.DaySchedule{Date: d, Occurrences: list})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days
}

func filterTodos(todos []model.Todo, today model.Date, now time.Time) []model.Todo {
	out := make([]model.Todo, 0, len(todos))
	for _, t := range todos {
		if TodoVisible(t, today, now) {
			out = append(out, t)
		}
	}
	return out
}

// TodoVisible applies the two inclusion rules for the assembled model:
//
//   - a completed todo remains visible for 24 hours after its completion
//     timestamp, then drops out
//   - a todo with a due date D and a reminder window of k days appears
//     only once today is within k days of D (and stays from then on); a
//     todo with no due date always appears
func TodoVisible(t model.Todo, today model.Date, now time.Time) bool {
	if t.Completed {
		if t.CompletedAt == nil {
			return false
		}
		if now.Sub(*t.CompletedAt) >= completedVisibleFor {
			return false
		}
	}

	if t.DueDate != nil && t.RemindDaysBefore != nil {
		// Days from today until the due date; negative means overdue.
		until := today.DaysUntil(*t.DueDate)
		if until > *t.RemindDaysBefore {
			return false
		}
	}

	return true
}

func filterDinners(dinners []model.DinnerPlan, today model.Date, days int) []model.DinnerPlan {
	limit := today.AddDays(days)
	out := make([]model.DinnerPlan, 0, len(dinners))
	for _, d := range dinners {
		if d.Date.Before(today) || !d.Date.Before(limit) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
