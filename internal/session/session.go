// Package session drives a timed exam session to a terminal result. The
// state machine owns its state exclusively: callers serialize SubmitAnswer
// and Tick (one in-flight event at a time), so there is no internal locking.
package session

import (
	"fmt"
	"math"
	"time"

	"github.com/mlaurent/examforge/internal/model"
)

// State is the lifecycle position of a session.
type State int

const (
	// StateReady holds an exam that has not started.
	StateReady State = iota
	// StateInProgress accepts answers and ticks.
	StateInProgress
	// StateCompleted means every question was answered.
	StateCompleted
	// StateTimedOut means the duration budget ran out mid-exam.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further question-answering transition is
// possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut
}

// ContractError marks a caller mistake: starting with an empty exam,
// answering out of turn, submitting a label the question does not have.
// The session state is unchanged when one is returned.
type ContractError struct {
	Op     string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("session contract violation in %s: %s", e.Op, e.Reason)
}

// Result is the projection of a terminal session.
type Result struct {
	Score    int
	Total    int
	TimedOut bool
	Answers  []model.AnswerRecord
}

// Grade normalizes the score to a 10-point scale with one decimal. Derived
// view, not stored state.
func (r Result) Grade() float64 {
	if r.Total == 0 {
		return 0
	}
	return math.Round(float64(r.Score)/float64(r.Total)*100) / 10
}

// Session runs one exam for one user.
type Session struct {
	exam      model.Exam
	state     State
	current   int
	score     int
	answers   []model.AnswerRecord
	startedAt time.Time
	budget    time.Duration
}

// New creates a Ready session holding the exam.
func New(exam model.Exam) *Session {
	return &Session{exam: exam, state: StateReady}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Exam returns the exam under test.
func (s *Session) Exam() model.Exam { return s.exam }

// CurrentIndex returns the index of the question awaiting an answer.
func (s *Session) CurrentIndex() int { return s.current }

// Remaining returns how much of the budget is left at now, clamped at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.state != StateInProgress {
		return 0
	}
	left := s.budget - now.Sub(s.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Start moves Ready to InProgress with the given duration budget.
func (s *Session) Start(budget time.Duration, now time.Time) error {
	if s.state != StateReady {
		return &ContractError{Op: "start", Reason: fmt.Sprintf("session is %s", s.state)}
	}
	if len(s.exam) == 0 {
		return &ContractError{Op: "start", Reason: "exam is empty"}
	}
	if budget <= 0 {
		return &ContractError{Op: "start", Reason: "duration budget must be positive"}
	}
	s.state = StateInProgress
	s.current = 0
	s.score = 0
	s.startedAt = now
	s.budget = budget
	return nil
}

// SubmitAnswer records the answer for the question at index. The index must
// be the current one: an index already answered is rejected rather than
// overwritten, so duplicate UI events cannot corrupt the score. The label
// must be one of the question's own options, matched exactly.
func (s *Session) SubmitAnswer(index int, label string) error {
	if s.state != StateInProgress {
		return &ContractError{Op: "submitAnswer", Reason: fmt.Sprintf("session is %s", s.state)}
	}
	if index < s.current {
		return &ContractError{Op: "submitAnswer", Reason: fmt.Sprintf("question %d already answered", index)}
	}
	if index > s.current {
		return &ContractError{Op: "submitAnswer", Reason: fmt.Sprintf("question %d is not the current question %d", index, s.current)}
	}
	q := s.exam[index]
	if _, ok := q.Options.Get(label); !ok {
		return &ContractError{Op: "submitAnswer", Reason: fmt.Sprintf("label %q is not an option of question %d", label, index)}
	}

	s.answers = append(s.answers, model.AnswerRecord{
		Index:        index,
		QuestionText: q.Text,
		ChosenLabel:  label,
		CorrectLabel: q.CorrectAnswer,
		Explanation:  q.Explanation,
	})
	if label == q.CorrectAnswer {
		s.score++
	}
	s.current++
	if s.current == len(s.exam) {
		s.state = StateCompleted
	}
	return nil
}

// Tick checks the clock. Past the budget while InProgress, the session
// becomes TimedOut with score and answers frozen as accumulated; unanswered
// questions are simply absent from the record. Tick never blocks and is
// callable in any state.
func (s *Session) Tick(now time.Time) State {
	if s.state == StateInProgress && now.Sub(s.startedAt) >= s.budget {
		s.state = StateTimedOut
	}
	return s.state
}

// Result projects a terminal session. Calling it earlier is a contract
// violation.
func (s *Session) Result() (Result, error) {
	if !s.state.Terminal() {
		return Result{}, &ContractError{Op: "result", Reason: fmt.Sprintf("session is %s", s.state)}
	}
	answers := make([]model.AnswerRecord, len(s.answers))
	copy(answers, s.answers)
	return Result{
		Score:    s.score,
		Total:    len(s.exam),
		TimedOut: s.state == StateTimedOut,
		Answers:  answers,
	}, nil
}
