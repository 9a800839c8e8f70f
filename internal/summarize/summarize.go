// Package summarize turns an assembled snapshot payload into narrative
// text through an Anthropic model. The call is a black box to the rest of
// the system: structured payload in, prose out, and a failure degrades the
// narrative without blocking snapshot persistence.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"daybrief/internal/config"
	appLog "daybrief/internal/log"
	"daybrief/internal/model"
)

type Summarizer struct {
	llm       llms.Model
	model     string
	maxTokens int

	householdContext string
	voice            string
}

// New builds a Summarizer from config. The API key comes from
// ANTHROPIC_API_KEY in the environment.
func New(cfg config.SummarizerConfig) (*Summarizer, error) {
	client, err := anthropic.New(anthropic.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("anthropic client: %w", err)
	}

	s := &Summarizer{
		llm:       client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	s.householdContext = readOptionalFile(cfg.ContextFile)
	s.voice = readOptionalFile(cfg.VoiceFile)
	return s, nil
}

// NewWithModel injects an llms.Model directly, for tests.
func NewWithModel(m llms.Model, maxTokens int) *Summarizer {
	return &Summarizer{llm: m, maxTokens: maxTokens}
}

func readOptionalFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		appLog.Warn("summarizer context file unreadable", "path", path, "err", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Summarize asks the model for the day's narrative. The response must be a
// bare JSON object matching model.Narrative's schema; anything else is an
// error the caller degrades on.
func (s *Summarizer) Summarize(ctx context.Context, date model.Date, payload model.SnapshotPayload) (*model.Narrative, error) {
	prompt := s.buildPrompt(date, payload)

	opts := []llms.CallOption{}
	if s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate narrative: %w", err)
	}

	var n model.Narrative
	if err := json.Unmarshal([]byte(stripFences(raw)), &n); err != nil {
		return nil, fmt.Errorf("narrative is not valid JSON: %w", err)
	}
	return &n, nil
}

// FailedNarrative is the placeholder persisted when generation fails; the
// rest of the snapshot stays usable.
func FailedNarrative() *model.Narrative {
	return &model.Narrative{
		Greeting:       "Today's summary could not be generated.",
		WeatherSummary: "",
		Schedule:       []model.NarrativeItem{},
		HeadsUp:        "The narrative will be retried on the next run.",
		Failed:         true,
	}
}

func (s *Summarizer) buildPrompt(date model.Date, payload model.SnapshotPayload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You're creating content for a daily household summary for %s (%s).\n\n",
		date.In(time.UTC).Format("Monday, January 2, 2006"), date)

	if s.voice != "" {
		fmt.Fprintf(&b, "NARRATOR VOICE:\n%s\n\n", s.voice)
	}
	if s.householdContext != "" {
		fmt.Fprintf(&b, "HOUSEHOLD CONTEXT:\n%s\n\n", s.householdContext)
	}

	b.WriteString("SCHEDULE (declined events already removed, duplicates already merged):\n")
	if len(payload.Days) == 0 {
		b.WriteString("  No calendar events in the window.\n")
	}
	for _, day := range payload.Days {
		fmt.Fprintf(&b, "  %s:\n", day.Date)
		for _, occ := range day.Occurrences {
			if occ.AllDay {
				fmt.Fprintf(&b, "    - (all day) %s", occ.Title)
			} else {
				fmt.Fprintf(&b, "    - %s-%s %s",
					occ.Start.Format("3:04 PM"), occ.End.Format("3:04 PM"), occ.Title)
			}
			if occ.Location != "" {
				fmt.Fprintf(&b, " at %s", occ.Location)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("TODOS:\n")
	if len(payload.Todos) == 0 {
		b.WriteString("  None.\n")
	}
	for _, t := range payload.Todos {
		fmt.Fprintf(&b, "  - %s", t.Title)
		if t.DueDate != nil {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		if t.Completed {
			b.WriteString(" (done)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(payload.Dinners) > 0 {
		b.WriteString("DINNER PLANS:\n")
		for _, d := range payload.Dinners {
			fmt.Fprintf(&b, "  - %s: %s\n", d.Date, d.Plan)
		}
		b.WriteString("\n")
	}

	if payload.Weather != nil {
		weatherJSON, _ := json.Marshal(payload.Weather)
		fmt.Fprintf(&b, "WEATHER FORECAST:\n%s\n\n", weatherJSON)
	}

	b.WriteString(`Respond with ONLY a JSON object (no markdown fences) using this exact schema:
{
  "greeting": "A short, friendly greeting or note about the day (1-2 sentences)",
  "weather_summary": "Weather overview with clothing recommendation (plain text, 2-3 sentences)",
  "schedule": [
    {"time": "8:00 AM", "title": "Event name", "notes": "Optional context or suggestion (or empty string)"}
  ],
  "heads_up": "Optional warnings or coordination notes. Empty string if nothing notable."
}

Guidelines:
1. Keep the schedule in chronological order.
2. Point out time gaps as chances to tackle todos.
3. Recommend clothing based on weather and activities.
4. Warn in heads_up if weather affects plans (outdoor events, pickups, etc.).
5. Plain text only for all values; no HTML.`)

	return b.String()
}

// stripFences tolerates a model that wraps its JSON in a code fence
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
