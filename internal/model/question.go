package model

import (
	"fmt"
	"strings"
	"time"
)

// OptionAlphabet is the set of labels an option may carry. Providers are
// instructed to label choices A, B, C... in order; anything outside this
// alphabet is rejected at construction.
const OptionAlphabet = "ABCDEF"

const (
	// MinOptions and MaxOptions bound the number of choices per question.
	MinOptions = 2
	MaxOptions = 6
)

// Option is a single answer choice. Options are kept as a slice, not a map,
// because display order is the order the provider produced them in.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Options is an ordered sequence of answer choices.
type Options []Option

// Get returns the text for a label, and whether the label exists.
func (o Options) Get(label string) (string, bool) {
	for _, opt := range o {
		if opt.Label == label {
			return opt.Text, true
		}
	}
	return "", false
}

// Labels returns the labels in display order.
func (o Options) Labels() []string {
	labels := make([]string, len(o))
	for i, opt := range o {
		labels[i] = opt.Label
	}
	return labels
}

// ChartData is optional numeric data attached to a question, e.g. a supply
// curve the question refers to.
type ChartData struct {
	X      []float64 `json:"x"`
	Y      []float64 `json:"y"`
	XLabel string    `json:"x_label"`
	YLabel string    `json:"y_label"`
	Title  string    `json:"title"`
}

// Question is a single multiple-choice question. Build it with NewQuestion;
// a Question that violates its invariants never exists.
type Question struct {
	Text          string     `json:"question"`
	Options       Options    `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
	Chart         *ChartData `json:"graph_data,omitempty"`
}

func validLabel(label string) bool {
	return len(label) == 1 && strings.ContainsAny(label, OptionAlphabet)
}

// NewQuestion validates and builds a Question.
// It enforces, in order: non-empty text, option count between MinOptions and
// MaxOptions, labels drawn from OptionAlphabet and unique, correct answer
// present among the options, and well-formed chart data when present.
// Duplicate or out-of-alphabet labels are rejected, never auto-corrected.
func NewQuestion(text string, options Options, correctAnswer, explanation string, chart *ChartData) (Question, error) {
	if strings.TrimSpace(text) == "" {
		return Question{}, fmt.Errorf("question text is empty")
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return Question{}, fmt.Errorf("question has %d options, want %d-%d", len(options), MinOptions, MaxOptions)
	}
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		if !validLabel(opt.Label) {
			return Question{}, fmt.Errorf("option label %q is outside alphabet %s", opt.Label, OptionAlphabet)
		}
		if seen[opt.Label] {
			return Question{}, fmt.Errorf("duplicate option label %q", opt.Label)
		}
		seen[opt.Label] = true
	}
	if !seen[correctAnswer] {
		return Question{}, fmt.Errorf("correct answer %q is not an option label", correctAnswer)
	}
	if chart != nil {
		if len(chart.X) == 0 || len(chart.X) != len(chart.Y) {
			return Question{}, fmt.Errorf("chart data has %d x values and %d y values", len(chart.X), len(chart.Y))
		}
	}
	opts := make(Options, len(options))
	copy(opts, options)
	return Question{
		Text:          text,
		Options:       opts,
		CorrectAnswer: correctAnswer,
		Explanation:   explanation,
		Chart:         chart,
	}, nil
}

// Exam is an ordered sequence of questions. Treat it as immutable once built.
type Exam []Question

// NewExam copies the question slice so later mutation of the input cannot
// reach a running session.
func NewExam(questions []Question) Exam {
	exam := make(Exam, len(questions))
	copy(exam, questions)
	return exam
}

// AnswerRecord captures one submitted answer.
type AnswerRecord struct {
	Index        int    `json:"index"`
	QuestionText string `json:"question_text"`
	ChosenLabel  string `json:"chosen_label"`
	CorrectLabel string `json:"correct_label"`
	Explanation  string `json:"explanation"`
}

// HistoryRecord is one completed (or timed-out) exam session. Write-once.
type HistoryRecord struct {
	ID          int64          `json:"id"`
	OwnerID     int64          `json:"owner_id"`
	CourseLabel string         `json:"course_label"`
	Score       int            `json:"score"`
	Total       int            `json:"total"`
	TimedOut    bool           `json:"timed_out"`
	CompletedAt time.Time      `json:"completed_at"`
	Answers     []AnswerRecord `json:"answers"`
}

// LibraryEntry is an exam published to the shared library. It carries the
// question sequence only; the source text an exam was generated from must
// never reach shared storage.
type LibraryEntry struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	AuthorID    int64     `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Exam        Exam      `json:"exam"`
	PublishedAt time.Time `json:"published_at"`
}
