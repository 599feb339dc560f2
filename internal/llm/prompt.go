package llm

import (
	"fmt"
	"strings"
)

// MaxSourceChars is the transmission limit for course text. Anything beyond
// it is cut before the prompt is built, to respect provider input limits.
const MaxSourceChars = 25000

// BuildPrompt builds the generation request text for the given course text
// and question count. It is pure and deterministic: identical inputs yield
// identical prompt text, so retries across providers are directly comparable.
func BuildPrompt(sourceText string, questionCount int) string {
	source := truncateRunes(sourceText, MaxSourceChars)

	var sb strings.Builder
	sb.WriteString("You are an expert university professor writing an exam.\n\n")
	sb.WriteString("Based on the following course material:\n\n")
	sb.WriteString(source)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Create an exam of %d multiple-choice questions in STRICT JSON.\n", questionCount)
	sb.WriteString("Output ONLY a JSON array. No prose before or after. No Markdown fencing (no ```json ... ```).\n\n")
	sb.WriteString("Expected format:\n")
	sb.WriteString(`[
  {
    "question": "The question text...",
    "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
    "correct_answer": "A",
    "explanation": "A detailed explanation...",
    "graph_data": null
  }
]
`)
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Option labels are consecutive capital letters starting at A, between 2 and 6 options per question.\n")
	sb.WriteString("- correct_answer must be exactly one of the option labels.\n")
	sb.WriteString(`- graph_data is null, or an object {"x": [numbers], "y": [numbers], "x_label": "...", "y_label": "...", "title": "..."} with x and y of equal, non-zero length.` + "\n")

	return sb.String()
}

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
