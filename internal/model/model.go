package model

import (
	"strings"
	"time"
)

// Participation is the closed set of owner participation states a calendar
// feed can record for an event. Unknown or malformed attendee records map
// to ParticipationNoRecord, which aggregation treats as attending.
type Participation int

const (
	ParticipationNoRecord Participation = iota
	ParticipationAccepted
	ParticipationDeclined
	ParticipationTentative
)

func (p Participation) String() string {
	switch p {
	case ParticipationAccepted:
		return "accepted"
	case ParticipationDeclined:
		return "declined"
	case ParticipationTentative:
		return "tentative"
	default:
		return "no-record"
	}
}

// Attendee is one ATTENDEE record on an event, reduced to the fields the
// declined-event filter needs.
type Attendee struct {
	Email  string        `json:"email"`
	Status Participation `json:"status"`
}

// FamilyMember is a household member calendars, todos, and dinner duties
// can be attached to.
type FamilyMember struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CalendarSource is one subscribed feed. Position is the configuration
// order; cross-source dedup keeps the occurrence from the lowest position.
type CalendarSource struct {
	ID         int64  `json:"id"`
	Label      string `json:"label"`
	URL        string `json:"url"`
	OwnerEmail string `json:"owner_email,omitempty"`
	MemberID   *int64 `json:"member_id,omitempty"`
	Position   int    `json:"position"`
}

// Occurrence is one concrete instance of a calendar event after recurrence
// expansion, normalized into the household timezone. Occurrences are
// recomputed on every synthesis run and never persisted outside a snapshot
// payload.
type Occurrence struct {
	SourceID int64  `json:"source_id"`
	UID      string `json:"uid"`

	// InstanceKey identifies a single occurrence of a recurring event,
	// derived from the local start time.
	InstanceKey string `json:"instance_key"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Attendees []Attendee `json:"attendees,omitempty"`
}

// StatusFor returns the recorded participation for the given email, or
// ParticipationNoRecord when the event carries nothing for that identity.
func (o Occurrence) StatusFor(email string) Participation {
	if email == "" {
		return ParticipationNoRecord
	}
	for _, a := range o.Attendees {
		if equalFoldTrim(a.Email, email) {
			return a.Status
		}
	}
	return ParticipationNoRecord
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// RecurrenceKind is the supported recurring-todo cadence.
type RecurrenceKind string

const (
	RecurDaily   RecurrenceKind = "daily"
	RecurWeekly  RecurrenceKind = "weekly"
	RecurMonthly RecurrenceKind = "monthly"
)

// RecurringTemplate describes a chore that regenerates on a cadence.
// LastGenerated is the watermark: the most recent fire date for which an
// instance was created. It is advanced only by the recurring engine.
type RecurringTemplate struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Kind        RecurrenceKind `json:"kind"`

	// Anchor is the weekday (0=Sunday..6=Saturday) for weekly templates
	// and the day-of-month (1..31) for monthly ones. Unused for daily.
	Anchor int `json:"anchor"`

	HasDueDate       bool   `json:"has_due_date"`
	RemindDaysBefore *int   `json:"remind_days_before,omitempty"`
	AssigneeID       *int64 `json:"assignee_id,omitempty"`
	Active           bool   `json:"active"`

	LastGenerated *Date `json:"last_generated,omitempty"`
}

// Todo is a concrete task, either entered directly or materialized from a
// recurring template (TemplateID set).
type Todo struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	DueDate          *Date      `json:"due_date,omitempty"`
	AssigneeID       *int64     `json:"assignee_id,omitempty"`
	RemindDaysBefore *int       `json:"remind_days_before,omitempty"`
	TemplateID       *int64     `json:"template_id,omitempty"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// DinnerPlan is a meal note for a local date. Multiple plans per date are
// allowed.
type DinnerPlan struct {
	ID          int64   `json:"id"`
	Date        Date    `json:"date"`
	Plan        string  `json:"plan"`
	AttendeeIDs []int64 `json:"attendee_ids,omitempty"`
	CookID      *int64  `json:"cook_id,omitempty"`
}

// WeatherDay is one forecast day in the household zone.
type WeatherDay struct {
	Date         Date    `json:"date"`
	MinTemp      float64 `json:"min_temp"`
	MaxTemp      float64 `json:"max_temp"`
	Conditions   string  `json:"conditions"`
	PrecipChance float64 `json:"precip_chance"`
}

// Weather is the compact forecast the assembler embeds in a snapshot.
type Weather struct {
	Temp       float64      `json:"temp"`
	FeelsLike  float64      `json:"feels_like"`
	Conditions string       `json:"conditions"`
	Days       []WeatherDay `json:"days,omitempty"`
}

// DaySchedule groups the occurrences falling on one local date.
type DaySchedule struct {
	Date        Date         `json:"date"`
	Occurrences []Occurrence `json:"occurrences"`
}

// NarrativeItem is one scheduled entry in the generated narrative.
type NarrativeItem struct {
	Time  string `json:"time"`
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// Narrative is the structured text the summarizer produces. Failed marks a
// snapshot whose generation call did not succeed; the rest of the payload
// is still valid.
type Narrative struct {
	Greeting       string          `json:"greeting"`
	WeatherSummary string          `json:"weather_summary"`
	Schedule       []NarrativeItem `json:"schedule"`
	HeadsUp        string          `json:"heads_up,omitempty"`
	Failed         bool            `json:"failed,omitempty"`
}

// SnapshotPayload is the serializable composite a synthesis run produces.
type SnapshotPayload struct {
	Days    []DaySchedule `json:"days"`
	Todos   []Todo        `json:"todos"`
	Dinners []DinnerPlan  `json:"dinners,omitempty"`
	Weather *Weather      `json:"weather,omitempty"`
}

// Snapshot is one persisted daily synthesis result. At most one snapshot
// is active at a time; older ones are kept for history.
type Snapshot struct {
	ID          int64           `json:"id"`
	Date        Date            `json:"date"`
	GeneratedAt time.Time       `json:"generated_at"`
	Payload     SnapshotPayload `json:"payload"`
	Narrative   *Narrative      `json:"narrative,omitempty"`
	Active      bool            `json:"active"`
}
