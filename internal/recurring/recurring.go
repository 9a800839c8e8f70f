// Package recurring decides, once per local calendar day, which recurring
// todo templates are due and materializes at most one concrete todo per
// template per fire date.
package recurring

import (
	"context"
	"errors"
	"fmt"

	appLog "daybrief/internal/log"
	"daybrief/internal/model"
)

// FiresOn reports whether d is a fire date for the template's rule.
//
//   - daily fires every day
//   - weekly fires when d's weekday equals the anchor (0=Sunday)
//   - monthly fires when d's day-of-month equals the anchor, with anchors
//     beyond the month's length clamping to the last day of that month
//     (the month is never skipped)
func FiresOn(t model.RecurringTemplate, d model.Date) bool {
	switch t.Kind {
	case model.RecurDaily:
		return true
	case model.RecurWeekly:
		return int(d.Weekday()) == t.Anchor
	case model.RecurMonthly:
		anchor := t.Anchor
		if anchor < 1 {
			anchor = 1
		}
		clamped := anchor
		if days := d.DaysInMonth(); clamped > days {
			clamped = days
		}
		return d.Day == clamped
	default:
		return false
	}
}

// LastFire returns the most recent fire date of the template on or before
// today. Useful for reporting; Materialize itself only needs FiresOn.
func LastFire(t model.RecurringTemplate, today model.Date) model.Date {
	d := today
	for i := 0; i < 62; i++ {
		if FiresOn(t, d) {
			return d
		}
		d = d.AddDays(-1)
	}
	// Unreachable for the supported kinds: every kind fires at least once
	// within any 62-day span.
	return today
}

// TemplateStore is the persistence surface the engine needs. The
// instance-insert and watermark-advance in CreateFromTemplate must be
// applied in one transaction so the watermark can never move past a fire
// date whose instance was not created.
type TemplateStore interface {
	ListActiveTemplates(ctx context.Context) ([]model.RecurringTemplate, error)
	OpenTodoForTemplate(ctx context.Context, templateID int64) (*model.Todo, error)
	CreateFromTemplate(ctx context.Context, todo model.Todo, templateID int64, fireDate model.Date) (model.Todo, error)
}

type Engine struct {
	store TemplateStore
}

func NewEngine(store TemplateStore) *Engine {
	return &Engine{store: store}
}

// Materialize walks all active templates for the given local date and
// creates the todos that are due. Running it twice for the same date
// against the same state is a no-op the second time:
//
//   - a template whose watermark already equals today is skipped
//   - a template with an open instance from a prior fire date is skipped
//     without advancing the watermark, so a backlog stays at one
//
// A failure on one template is logged and does not stop the others.
func (e *Engine) Materialize(ctx context.Context, today model.Date) ([]model.Todo, error) {
	templates, err := e.store.ListActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}

	var created []model.Todo
	var errs []error

	for _, tpl := range templates {
		if !tpl.Active {
			continue
		}
		if !FiresOn(tpl, today) {
			continue
		}
		if tpl.LastGenerated != nil && !tpl.LastGenerated.Before(today) {
			// Already generated for today (or a re-run with a stale list).
			continue
		}

		open, err := e.store.OpenTodoForTemplate(ctx, tpl.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %d: open-instance check: %w", tpl.ID, err))
			continue
		}
		if open != nil {
			// Unfinished work from a prior fire date. One open instance is
			// the intended backlog; do not stack another, and leave the
			// watermark where it is.
			appLog.Debug("recurring template has open instance, skipping", "template_id", tpl.ID, "title", tpl.Title)
			continue
		}

		todo := instanceFor(tpl, today)
		saved, err := e.store.CreateFromTemplate(ctx, todo, tpl.ID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %d: create instance: %w", tpl.ID, err))
			continue
		}

		appLog.Info("recurring todo materialized", "template_id", tpl.ID, "title", tpl.Title, "fire_date", today)
		created = append(created, saved)
	}

	return created, errors.Join(errs...)
}

// instanceFor builds the concrete todo a template produces on fireDate.
func instanceFor(tpl model.RecurringTemplate, fireDate model.Date) model.Todo {
	todo := model.Todo{
		Title:       tpl.Title,
		Description: tpl.Description,
		AssigneeID:  tpl.AssigneeID,
		TemplateID:  &tpl.ID,
	}
	if tpl.HasDueDate {
		d := fireDate
		todo.DueDate = &d
	}
	if tpl.RemindDaysBefore != nil {
		r := *tpl.RemindDaysBefore
		todo.RemindDaysBefore = &r
	}
	return todo
}
