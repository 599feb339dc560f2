package model

import (
	"strings"
	"testing"
)

func fourOptions() Options {
	return Options{
		{Label: "A", Text: "demand falls"},
		{Label: "B", Text: "price rises"},
		{Label: "C", Text: "supply shifts right"},
		{Label: "D", Text: "nothing changes"},
	}
}

func TestNewQuestion(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		options Options
		correct string
		chart   *ChartData
		wantErr string
	}{
		{"valid", "What happens when supply increases?", fourOptions(), "C", nil, ""},
		{"valid with chart", "See the curve.", fourOptions(), "A",
			&ChartData{X: []float64{1, 2}, Y: []float64{3, 4}}, ""},
		{"empty text", "   ", fourOptions(), "A", nil, "text is empty"},
		{"too few options", "Q?", Options{{Label: "A", Text: "x"}}, "A", nil, "options"},
		{"too many options", "Q?", Options{
			{Label: "A"}, {Label: "B"}, {Label: "C"}, {Label: "D"}, {Label: "E"}, {Label: "F"},
			{Label: "G"},
		}, "A", nil, "options"},
		{"correct answer missing", "Q?", fourOptions(), "E", nil, "not an option label"},
		{"case sensitive match", "Q?", fourOptions(), "a", nil, "not an option label"},
		{"duplicate label", "Q?", Options{
			{Label: "A", Text: "x"}, {Label: "A", Text: "y"},
		}, "A", nil, "duplicate option label"},
		{"out of alphabet label", "Q?", Options{
			{Label: "A", Text: "x"}, {Label: "Z", Text: "y"},
		}, "A", nil, "outside alphabet"},
		{"multi-char label", "Q?", Options{
			{Label: "A", Text: "x"}, {Label: "AB", Text: "y"},
		}, "A", nil, "outside alphabet"},
		{"chart length mismatch", "Q?", fourOptions(), "B",
			&ChartData{X: []float64{1, 2}, Y: []float64{3}}, "chart data"},
		{"chart empty", "Q?", fourOptions(), "B",
			&ChartData{}, "chart data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuestion(tt.text, tt.options, tt.correct, "because", tt.chart)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewQuestion: %v", err)
				}
				if q.CorrectAnswer != tt.correct {
					t.Errorf("correct answer = %q, want %q", q.CorrectAnswer, tt.correct)
				}
				if _, ok := q.Options.Get(q.CorrectAnswer); !ok {
					t.Error("correct answer not found among options")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptionsOrderPreserved(t *testing.T) {
	opts := Options{
		{Label: "B", Text: "second in alphabet, first in display"},
		{Label: "A", Text: "first in alphabet, second in display"},
	}
	q, err := NewQuestion("Order?", opts, "B", "", nil)
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}
	got := q.Options.Labels()
	if got[0] != "B" || got[1] != "A" {
		t.Errorf("labels = %v, want [B A]", got)
	}
}

func TestNewQuestionCopiesOptions(t *testing.T) {
	opts := fourOptions()
	q, err := NewQuestion("Q?", opts, "A", "", nil)
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}
	opts[0].Text = "mutated"
	if text, _ := q.Options.Get("A"); text == "mutated" {
		t.Error("question shares backing array with caller's options")
	}
}

func TestNewExamCopies(t *testing.T) {
	q1, _ := NewQuestion("Q1?", fourOptions(), "A", "", nil)
	q2, _ := NewQuestion("Q2?", fourOptions(), "B", "", nil)
	qs := []Question{q1, q2}
	exam := NewExam(qs)
	qs[0] = q2
	if exam[0].Text != "Q1?" {
		t.Error("exam shares backing array with caller's slice")
	}
	if len(exam) != 2 {
		t.Errorf("exam length = %d, want 2", len(exam))
	}
}
