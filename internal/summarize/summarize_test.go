package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"daybrief/internal/model"
)

// fakeModel returns a canned response and records the prompt it was given.
type fakeModel struct {
	response string
	err      error
	prompt   string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = text.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

const narrativeJSON = `{
  "greeting": "Good morning, team!",
  "weather_summary": "Chilly start, warming up. Light jackets.",
  "schedule": [{"time": "4:00 PM", "title": "Soccer Practice", "notes": "Bring cleats"}],
  "heads_up": "Rain possible during practice."
}`

func samplePayload() model.SnapshotPayload {
	due := model.Date{Year: 2027, Month: 3, Day: 3}
	return model.SnapshotPayload{
		Days: []model.DaySchedule{{
			Date: model.Date{Year: 2027, Month: 3, Day: 2},
			Occurrences: []model.Occurrence{{
				Title:    "Soccer Practice",
				Location: "Miller Park",
				Start:    time.Date(2027, 3, 2, 16, 0, 0, 0, time.UTC),
				End:      time.Date(2027, 3, 2, 17, 0, 0, 0, time.UTC),
			}},
		}},
		Todos:   []model.Todo{{Title: "Take out trash", DueDate: &due}},
		Dinners: []model.DinnerPlan{{Date: model.Date{Year: 2027, Month: 3, Day: 2}, Plan: "Tacos"}},
		Weather: &model.Weather{Temp: 48.5, Conditions: "overcast"},
	}
}

func TestSummarizeParsesNarrative(t *testing.T) {
	fake := &fakeModel{response: narrativeJSON}
	s := NewWithModel(fake, 1024)

	n, err := s.Summarize(context.Background(), model.Date{Year: 2027, Month: 3, Day: 2}, samplePayload())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n.Greeting != "Good morning, team!" {
		t.Errorf("Greeting = %q", n.Greeting)
	}
	if len(n.Schedule) != 1 || n.Schedule[0].Title != "Soccer Practice" {
		t.Errorf("Schedule = %+v", n.Schedule)
	}
	if n.HeadsUp == "" || n.Failed {
		t.Errorf("HeadsUp = %q, Failed = %v", n.HeadsUp, n.Failed)
	}
}

func TestSummarizeToleratesCodeFences(t *testing.T) {
	fake := &fakeModel{response: "```json\n" + narrativeJSON + "\n```"}
	s := NewWithModel(fake, 1024)

	n, err := s.Summarize(context.Background(), model.Date{Year: 2027, Month: 3, Day: 2}, samplePayload())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n.Greeting != "Good morning, team!" {
		t.Errorf("Greeting = %q", n.Greeting)
	}
}

func TestSummarizeRejectsNonJSON(t *testing.T) {
	fake := &fakeModel{response: "Sure! Here's your summary: it will be a lovely day."}
	s := NewWithModel(fake, 1024)

	if _, err := s.Summarize(context.Background(), model.Date{Year: 2027, Month: 3, Day: 2}, samplePayload()); err == nil {
		t.Error("expected error for prose response")
	}
}

func TestSummarizePropagatesModelError(t *testing.T) {
	fake := &fakeModel{err: errors.New("rate limited")}
	s := NewWithModel(fake, 1024)

	if _, err := s.Summarize(context.Background(), model.Date{Year: 2027, Month: 3, Day: 2}, samplePayload()); err == nil {
		t.Error("expected model error to propagate")
	}
}

func TestPromptCarriesPayload(t *testing.T) {
	fake := &fakeModel{response: narrativeJSON}
	s := NewWithModel(fake, 1024)

	if _, err := s.Summarize(context.Background(), model.Date{Year: 2027, Month: 3, Day: 2}, samplePayload()); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	for _, want := range []string{
		"Tuesday, March 2, 2027",
		"Soccer Practice",
		"Miller Park",
		"Take out trash",
		"(due 2027-03-03)",
		"Tacos",
		"overcast",
	} {
		if !strings.Contains(fake.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFailedNarrative(t *testing.T) {
	n := FailedNarrative()
	if !n.Failed {
		t.Error("Failed flag not set")
	}
	if n.Greeting == "" {
		t.Error("placeholder greeting is empty")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
