package llm

import (
	"errors"
	"strings"
	"testing"
)

const validArray = `[
  {
    "question": "What happens to price when supply increases?",
    "options": {"A": "It rises", "B": "It falls", "C": "It is unchanged", "D": "It doubles"},
    "correct_answer": "B",
    "explanation": "A rightward supply shift lowers the equilibrium price.",
    "graph_data": null
  },
  {
    "question": "Which curve shifts?",
    "options": {"A": "Demand", "B": "Supply"},
    "correct_answer": "B",
    "explanation": "The supply curve shifts right.",
    "graph_data": {"x": [1, 2, 3], "y": [3, 2, 1], "x_label": "Q", "y_label": "P", "title": "Supply"}
  }
]`

func TestExtractExamValid(t *testing.T) {
	exam, err := ExtractExam("test", validArray)
	if err != nil {
		t.Fatalf("ExtractExam: %v", err)
	}
	if len(exam) != 2 {
		t.Fatalf("exam length = %d, want 2", len(exam))
	}
	if exam[0].CorrectAnswer != "B" {
		t.Errorf("correct answer = %q, want B", exam[0].CorrectAnswer)
	}
	if got := exam[0].Options.Labels(); len(got) != 4 || got[0] != "A" || got[3] != "D" {
		t.Errorf("option labels = %v, want [A B C D]", got)
	}
	if exam[1].Chart == nil || len(exam[1].Chart.X) != 3 {
		t.Error("chart data not decoded")
	}
}

func TestExtractExamIdempotentOnFencing(t *testing.T) {
	fenced := "```json\n" + validArray + "\n```"
	plain, err := ExtractExam("test", validArray)
	if err != nil {
		t.Fatalf("ExtractExam plain: %v", err)
	}
	wrapped, err := ExtractExam("test", fenced)
	if err != nil {
		t.Fatalf("ExtractExam fenced: %v", err)
	}
	if len(plain) != len(wrapped) {
		t.Fatalf("lengths differ: %d vs %d", len(plain), len(wrapped))
	}
	for i := range plain {
		if plain[i].Text != wrapped[i].Text || plain[i].CorrectAnswer != wrapped[i].CorrectAnswer {
			t.Errorf("question %d differs between plain and fenced input", i)
		}
	}
}

func TestExtractExamMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"trailing comma", `[{"question": "Q?", "options": {"A": "x", "B": "y"}, "correct_answer": "A", "explanation": "e",}]`, "decode JSON array"},
		{"not an array", `{"question": "Q?"}`, "decode JSON array"},
		{"prose only", "I cannot generate an exam from this text.", "decode JSON array"},
		{"empty array", `[]`, "no questions"},
		{"correct answer not an option", `[{"question": "Q?", "options": {"A": "x", "B": "y"}, "correct_answer": "C", "explanation": "e"}]`, "not an option label"},
		{"duplicate label", `[{"question": "Q?", "options": {"A": "x", "A": "y"}, "correct_answer": "A", "explanation": "e"}]`, "duplicate option label"},
		{"out of alphabet label", `[{"question": "Q?", "options": {"1": "x", "2": "y"}, "correct_answer": "1", "explanation": "e"}]`, "outside alphabet"},
		{"single option", `[{"question": "Q?", "options": {"A": "x"}, "correct_answer": "A", "explanation": "e"}]`, "options"},
		{"chart mismatch", `[{"question": "Q?", "options": {"A": "x", "B": "y"}, "correct_answer": "A", "explanation": "e", "graph_data": {"x": [1], "y": []}}]`, "chart data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractExam("prov", tt.raw)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Fatalf("error type = %T, want *MalformedError", err)
			}
			if malformed.Provider != "prov" {
				t.Errorf("provider = %q, want prov", malformed.Provider)
			}
			if malformed.RawText != tt.raw {
				t.Error("raw text not carried verbatim")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `[1, 2]`, `[1, 2]`},
		{"no fence with whitespace", "  [1, 2]\n", `[1, 2]`},
		{"fence with json tag", "```json\n[1, 2]\n```", `[1, 2]`},
		{"fence without tag", "```\n[1, 2]\n```", `[1, 2]`},
		{"unterminated fence", "```json\n[1, 2]", `[1, 2]`},
		{"content on opening line", "``` [1, 2]\n```", `[1, 2]`},
		{"empty fenced block", "```json\n```", ``},
		{"trailing prose ignored", "```json\n[1, 2]\n``` hope this helps!", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFence(tt.in); got != tt.want {
				t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
