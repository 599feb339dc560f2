package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/mlaurent/examforge/internal/i18n"
	"github.com/mlaurent/examforge/internal/llm"
	"github.com/mlaurent/examforge/internal/model"
	"github.com/mlaurent/examforge/internal/store"
)

const cannedExam = "```json\n" + `[
  {
    "question": "What shifts when supply increases?",
    "options": {"A": "Demand", "B": "Supply"},
    "correct_answer": "B",
    "explanation": "The supply curve shifts right."
  },
  {
    "question": "Price of a free good?",
    "options": {"A": "Zero", "B": "Infinite"},
    "correct_answer": "A",
    "explanation": "Free goods carry no price."
  }
]` + "\n```"

// cannedProvider always probes clean and returns a fixed response.
type cannedProvider struct {
	output string
}

func (p *cannedProvider) Name() string                { return "canned" }
func (p *cannedProvider) HasCredential() bool         { return true }
func (p *cannedProvider) Probe(context.Context) error { return nil }
func (p *cannedProvider) Generate(_ context.Context, _ string) (string, error) {
	return p.output, nil
}

type testServer struct {
	srv    *httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_, err = s.CreateUser(model.User{
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: string(hash),
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	svc := llm.NewService(llm.NewGateway(), []llm.Provider{&cannedProvider{output: cannedExam}})
	h := New(s, svc, model.Config{
		QuestionCount: 2,
		ExamDuration:  5 * time.Minute,
	})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar := &cookieJar{}
	return &testServer{srv: srv, client: &http.Client{Jar: jar}}
}

// cookieJar keeps every cookie it sees; enough for one-host tests.
type cookieJar struct {
	cookies []*http.Cookie
}

func (j *cookieJar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.cookies = append(j.cookies, cookies...)
}

func (j *cookieJar) Cookies(_ *url.URL) []*http.Cookie { return j.cookies }

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp, decoded
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

const sourceText = "Supply and demand are the forces that drive market prices. " +
	"When supply increases the curve shifts right and the market price falls."

func TestUnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/exams/generate", map[string]any{"source_text": sourceText})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestGenerateRejectsShortSource(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	resp, body := ts.do(t, http.MethodPost, "/exams/generate", map[string]any{"source_text": "too short"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Fatal("expected localized error message")
	}
}

func TestFullExamFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	// Generate.
	resp, body := ts.do(t, http.MethodPost, "/exams/generate", map[string]any{
		"source_text":  sourceText,
		"course_label": "Economics 101",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate status = %d: %v", resp.StatusCode, body)
	}
	examToken, _ := body["exam_token"].(string)
	if examToken == "" {
		t.Fatal("generate returned no exam_token")
	}
	if got := body["question_count"].(float64); got != 2 {
		t.Fatalf("question_count = %v, want 2", got)
	}

	// Start a session.
	resp, body = ts.do(t, http.MethodPost, "/sessions", map[string]any{"exam_token": examToken})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d: %v", resp.StatusCode, body)
	}
	sessToken, _ := body["session_token"].(string)
	if sessToken == "" {
		t.Fatal("start returned no session_token")
	}
	if state := body["state"]; state != "in_progress" {
		t.Fatalf("state = %v, want in_progress", state)
	}
	question := body["question"].(map[string]any)
	if _, leaked := question["correct_answer"]; leaked {
		t.Fatal("question payload leaked the correct answer")
	}

	// Answer both questions, one right, one wrong.
	resp, body = ts.do(t, http.MethodPost, "/sessions/"+sessToken+"/answers", answerRequest{Index: 0, Label: "B"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer 0 status = %d: %v", resp.StatusCode, body)
	}
	if body["correct"] != true {
		t.Fatalf("answer 0 correct = %v, want true", body["correct"])
	}
	if body["explanation"] == "" {
		t.Fatal("answer feedback missing explanation")
	}

	resp, body = ts.do(t, http.MethodPost, "/sessions/"+sessToken+"/answers", answerRequest{Index: 1, Label: "B"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer 1 status = %d: %v", resp.StatusCode, body)
	}
	if body["correct"] != false {
		t.Fatalf("answer 1 correct = %v, want false", body["correct"])
	}
	if state := body["state"]; state != "completed" {
		t.Fatalf("state after last answer = %v, want completed", state)
	}

	// Resubmitting an answered index is rejected.
	resp, _ = ts.do(t, http.MethodPost, "/sessions/"+sessToken+"/answers", answerRequest{Index: 0, Label: "A"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("resubmission status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	// Result archives the session.
	resp, body = ts.do(t, http.MethodGet, "/sessions/"+sessToken+"/result", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d: %v", resp.StatusCode, body)
	}
	if score := body["score"].(float64); score != 1 {
		t.Fatalf("score = %v, want 1", score)
	}
	if total := body["total"].(float64); total != 2 {
		t.Fatalf("total = %v, want 2", total)
	}
	if grade := body["grade"].(float64); grade != 5.0 {
		t.Fatalf("grade = %v, want 5.0", grade)
	}

	// The session is gone after the result is read.
	resp, _ = ts.do(t, http.MethodGet, "/sessions/"+sessToken+"/result", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second result status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	// The run shows up in history.
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/history", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	histResp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	defer histResp.Body.Close()
	var records []model.HistoryRecord
	if err := json.NewDecoder(histResp.Body).Decode(&records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("history length = %d, want 1", len(records))
	}
	if records[0].CourseLabel != "Economics 101" || records[0].Score != 1 || records[0].Total != 2 {
		t.Fatalf("unexpected history record: %+v", records[0])
	}
}

func TestPublishAndRunLibraryExam(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	_, body := ts.do(t, http.MethodPost, "/exams/generate", map[string]any{
		"source_text":  sourceText,
		"course_label": "Economics 101",
	})
	examToken := body["exam_token"].(string)

	resp, body := ts.do(t, http.MethodPost, "/library/publish", publishRequest{
		ExamToken: examToken,
		Title:     "Market Basics",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status = %d: %v", resp.StatusCode, body)
	}
	libraryID := int64(body["library_id"].(float64))

	resp, body = ts.do(t, http.MethodPost, "/sessions", startSessionRequest{LibraryID: libraryID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start from library status = %d: %v", resp.StatusCode, body)
	}
	if total := body["total"].(float64); total != 2 {
		t.Fatalf("total = %v, want 2", total)
	}
}

func TestSessionTimesOut(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	_, body := ts.do(t, http.MethodPost, "/exams/generate", map[string]any{"source_text": sourceText})
	examToken := body["exam_token"].(string)

	resp, body := ts.do(t, http.MethodPost, "/sessions", startSessionRequest{
		ExamToken:       examToken,
		DurationSeconds: 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d: %v", resp.StatusCode, body)
	}
	sessToken := body["session_token"].(string)

	time.Sleep(1100 * time.Millisecond)

	resp, body = ts.do(t, http.MethodPost, "/sessions/"+sessToken+"/answers", answerRequest{Index: 0, Label: "A"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("answer after deadline status = %d: %v", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/sessions/"+sessToken+"/result", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d: %v", resp.StatusCode, body)
	}
	if body["timed_out"] != true {
		t.Fatalf("timed_out = %v, want true", body["timed_out"])
	}
	if score := body["score"].(float64); score != 0 {
		t.Fatalf("score = %v, want 0", score)
	}
	if total := body["total"].(float64); total != 2 {
		t.Fatalf("total = %v, want 2", total)
	}
}
