package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredential means no candidate provider carries an API key. The user
// has to supply one; retrying is pointless.
var ErrNoCredential = errors.New("no provider credential configured")

// ErrInsufficientSource means the supplied course text is too short to
// generate an exam from. No provider call is made.
var ErrInsufficientSource = errors.New("source text too short to generate an exam")

// Attempt records one failed provider attempt, in attempt order.
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustedError means every candidate provider failed. It carries one cause
// per attempt so the caller can show the user which provider failed why.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var sb strings.Builder
	sb.WriteString("all providers exhausted:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, " %s: %v;", a.Provider, a.Err)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// MalformedError means a provider answered but its output could not be turned
// into a valid exam. RawText is kept verbatim for diagnostics. Retrying the
// same provider is safe: this is a formatting failure, not availability.
type MalformedError struct {
	Provider string
	RawText  string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Provider, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
