package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mlaurent/examforge/internal/model"
)

const fence = "```"

// wireQuestion is the shape providers are instructed to return. Decoded
// here, validated by model.NewQuestion.
type wireQuestion struct {
	Question      string           `json:"question"`
	Options       orderedOptions   `json:"options"`
	CorrectAnswer string           `json:"correct_answer"`
	Explanation   string           `json:"explanation"`
	GraphData     *model.ChartData `json:"graph_data"`
}

// orderedOptions decodes a JSON object into an ordered option list. A plain
// Go map would lose the provider's display order and silently collapse
// duplicate labels, so the object is walked token by token instead.
type orderedOptions model.Options

func (o *orderedOptions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("options is not a JSON object")
	}
	var opts model.Options
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("option label is not a string")
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("option %q text: %w", label, err)
		}
		opts = append(opts, model.Option{Label: label, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = orderedOptions(opts)
	return nil
}

// ExtractExam converts raw provider output into a validated exam. Any decode
// or validation failure comes back as a MalformedError carrying the raw text
// verbatim; a partial or empty exam is never returned, because "unparseable"
// and "zero valid questions" call for different remediation than "no content".
//
// Extraction is idempotent on already-clean JSON: the same array with or
// without one fenced block around it yields the same exam.
func ExtractExam(provider, rawText string) (model.Exam, error) {
	clean := stripFence(rawText)

	var wire []wireQuestion
	if err := json.Unmarshal([]byte(clean), &wire); err != nil {
		return nil, &MalformedError{Provider: provider, RawText: rawText, Err: fmt.Errorf("decode JSON array: %w", err)}
	}
	if len(wire) == 0 {
		return nil, &MalformedError{Provider: provider, RawText: rawText, Err: fmt.Errorf("response contains no questions")}
	}

	questions := make([]model.Question, 0, len(wire))
	for i, wq := range wire {
		q, err := model.NewQuestion(wq.Question, model.Options(wq.Options), wq.CorrectAnswer, wq.Explanation, wq.GraphData)
		if err != nil {
			return nil, &MalformedError{Provider: provider, RawText: rawText, Err: fmt.Errorf("question %d: %w", i+1, err)}
		}
		questions = append(questions, q)
	}
	return model.NewExam(questions), nil
}

// stripFence removes a single outer fenced code block, if present: the text
// strictly between the first opening delimiter and the next closing one,
// minus a leading language tag. No delimiter means the text is used
// verbatim. An unterminated fence keeps everything after the opening line;
// the JSON decoder is the judge of what remains.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, fence) {
		return t
	}
	t = t[len(fence):]
	if end := strings.Index(t, fence); end >= 0 {
		t = t[:end]
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		if isLanguageTag(strings.TrimSpace(t[:nl])) {
			t = t[nl+1:]
		}
	}
	return strings.TrimSpace(t)
}

// isLanguageTag reports whether the first fence line is a tag like "json"
// rather than content.
func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
