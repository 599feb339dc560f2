package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/mlaurent/examforge/internal/i18n"
	"github.com/mlaurent/examforge/internal/llm"
	"github.com/mlaurent/examforge/internal/model"
	"github.com/mlaurent/examforge/internal/session"
	"github.com/mlaurent/examforge/internal/store"
)

// pendingExam is a generated exam waiting for a session or a publish. Kept
// server-side so correct answers never travel to the client ahead of time.
type pendingExam struct {
	exam        model.Exam
	courseLabel string
	ownerID     int64
	createdAt   time.Time
}

// liveSession pairs a state machine with its owner. The mutex in Handler
// serializes all access: SubmitAnswer and Tick are never interleaved.
type liveSession struct {
	sess        *session.Session
	courseLabel string
	ownerID     int64
	archived    bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	svc    *llm.Service
	config model.Config

	mu       sync.Mutex
	exams    map[string]*pendingExam
	sessions map[string]*liveSession
}

// New creates a new Handler.
func New(s *store.Store, svc *llm.Service, cfg model.Config) *Handler {
	return &Handler{
		store:    s,
		svc:      svc,
		config:   cfg,
		exams:    make(map[string]*pendingExam),
		sessions: make(map[string]*liveSession),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/exams/generate", h.handleGenerate)
		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions/{token}", h.handleSessionState)
		r.Post("/sessions/{token}/answers", h.handleAnswer)
		r.Get("/sessions/{token}/result", h.handleResult)
		r.Get("/history", h.handleHistory)
		r.Get("/library", h.handleLibraryList)
		r.Post("/library/publish", h.handlePublish)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleListUsers)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{id}/toggle", h.handleToggleUser)
		})
	})
}

// optionView is an answer choice as shown to the taker.
type optionView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// questionView is a question stripped of its correct answer and explanation.
type questionView struct {
	Index   int              `json:"index"`
	Text    string           `json:"question"`
	Options []optionView     `json:"options"`
	Chart   *model.ChartData `json:"graph_data,omitempty"`
}

func viewOf(index int, q model.Question) questionView {
	opts := make([]optionView, len(q.Options))
	for i, o := range q.Options {
		opts[i] = optionView{Label: o.Label, Text: o.Text}
	}
	return questionView{Index: index, Text: q.Text, Options: opts, Chart: q.Chart}
}

type generateRequest struct {
	SourceText    string `json:"source_text"`
	QuestionCount int    `json:"question_count"`
	CourseLabel   string `json:"course_label"`
}

type generateResponse struct {
	ExamToken     string `json:"exam_token"`
	QuestionCount int    `json:"question_count"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "GenerationFailed", err.Error())
		return
	}
	count := req.QuestionCount
	if count <= 0 {
		count = h.config.QuestionCount
	}

	exam, err := h.svc.Generate(r.Context(), req.SourceText, count)
	if err != nil {
		h.respondGenerationError(w, r, err)
		return
	}

	token, err := newToken()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "GenerationFailed", err.Error())
		return
	}
	h.mu.Lock()
	h.exams[token] = &pendingExam{
		exam:        exam,
		courseLabel: req.CourseLabel,
		ownerID:     user.ID,
		createdAt:   time.Now(),
	}
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, generateResponse{ExamToken: token, QuestionCount: len(exam)})
}

// respondGenerationError maps each typed generation failure to its own
// status and payload: the remediation differs per kind, so the client must
// be able to tell them apart.
func (h *Handler) respondGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *llm.ExhaustedError
	var malformed *llm.MalformedError
	switch {
	case errors.Is(err, llm.ErrInsufficientSource):
		respondError(w, r, http.StatusUnprocessableEntity, "InsufficientSource", "")
	case errors.Is(err, llm.ErrNoCredential):
		respondError(w, r, http.StatusBadRequest, "NoCredential", "")
	case errors.As(err, &exhausted):
		causes := make([]map[string]string, len(exhausted.Attempts))
		for i, a := range exhausted.Attempts {
			causes[i] = map[string]string{"provider": a.Provider, "cause": a.Err.Error()}
		}
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":    appI18n.T(r.Context(), "ProvidersExhausted"),
			"kind":     "all_providers_exhausted",
			"attempts": causes,
		})
	case errors.As(err, &malformed):
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":    appI18n.T(r.Context(), "MalformedResponse"),
			"kind":     "malformed_response",
			"provider": malformed.Provider,
			"raw_text": malformed.RawText,
			"detail":   malformed.Err.Error(),
		})
	default:
		slog.Error("generation failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "GenerationFailed", err.Error())
	}
}

type startSessionRequest struct {
	ExamToken       string `json:"exam_token,omitempty"`
	LibraryID       int64  `json:"library_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type sessionStateResponse struct {
	SessionToken     string        `json:"session_token"`
	State            string        `json:"state"`
	Total            int           `json:"total"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Question         *questionView `json:"question,omitempty"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "SessionNotFound", err.Error())
		return
	}

	var exam model.Exam
	var courseLabel string
	switch {
	case req.ExamToken != "":
		h.mu.Lock()
		pending, ok := h.exams[req.ExamToken]
		if ok && pending.ownerID == user.ID {
			// One session per generated exam; the pending entry is consumed.
			delete(h.exams, req.ExamToken)
		}
		h.mu.Unlock()
		if !ok || pending.ownerID != user.ID {
			respondError(w, r, http.StatusNotFound, "ExamNotFound", "")
			return
		}
		exam, courseLabel = pending.exam, pending.courseLabel
	case req.LibraryID != 0:
		entry, err := h.store.GetLibraryExam(req.LibraryID)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "ExamNotFound", err.Error())
			return
		}
		if entry == nil {
			respondError(w, r, http.StatusNotFound, "ExamNotFound", "")
			return
		}
		exam, courseLabel = entry.Exam, entry.Title
	default:
		respondError(w, r, http.StatusBadRequest, "ExamNotFound", "exam_token or library_id required")
		return
	}

	budget := h.config.ExamDuration
	if req.DurationSeconds > 0 {
		budget = time.Duration(req.DurationSeconds) * time.Second
	}

	now := time.Now()
	sess := session.New(exam)
	if err := sess.Start(budget, now); err != nil {
		respondContractError(w, r, err)
		return
	}

	token, err := newToken()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "SessionNotFound", err.Error())
		return
	}
	h.mu.Lock()
	h.sessions[token] = &liveSession{sess: sess, courseLabel: courseLabel, ownerID: user.ID}
	h.mu.Unlock()

	q := viewOf(0, exam[0])
	respondJSON(w, http.StatusCreated, sessionStateResponse{
		SessionToken:     token,
		State:            sess.State().String(),
		Total:            len(exam),
		RemainingSeconds: int(sess.Remaining(now).Seconds()),
		Question:         &q,
	})
}

// getSession resolves a session token for the authenticated user and
// advances the clock. It must be called with h.mu held.
func (h *Handler) getSession(r *http.Request, token string) *liveSession {
	user := model.UserFromContext(r.Context())
	live, ok := h.sessions[token]
	if !ok || live.ownerID != user.ID {
		return nil
	}
	live.sess.Tick(time.Now())
	return live
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	live := h.getSession(r, chi.URLParam(r, "token"))
	if live == nil {
		respondError(w, r, http.StatusNotFound, "SessionNotFound", "")
		return
	}

	now := time.Now()
	resp := sessionStateResponse{
		SessionToken:     chi.URLParam(r, "token"),
		State:            live.sess.State().String(),
		Total:            len(live.sess.Exam()),
		RemainingSeconds: int(live.sess.Remaining(now).Seconds()),
	}
	if live.sess.State() == session.StateInProgress {
		q := viewOf(live.sess.CurrentIndex(), live.sess.Exam()[live.sess.CurrentIndex()])
		resp.Question = &q
	}
	respondJSON(w, http.StatusOK, resp)
}

type answerRequest struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

type answerResponse struct {
	Correct      bool          `json:"correct"`
	CorrectLabel string        `json:"correct_label"`
	Explanation  string        `json:"explanation"`
	State        string        `json:"state"`
	Question     *questionView `json:"question,omitempty"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "SessionNotFound", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	live := h.getSession(r, chi.URLParam(r, "token"))
	if live == nil {
		respondError(w, r, http.StatusNotFound, "SessionNotFound", "")
		return
	}
	if live.sess.State() != session.StateInProgress {
		respondError(w, r, http.StatusConflict, "SessionFinished", live.sess.State().String())
		return
	}

	if err := live.sess.SubmitAnswer(req.Index, req.Label); err != nil {
		respondContractError(w, r, err)
		return
	}
	q := live.sess.Exam()[req.Index]

	resp := answerResponse{
		Correct:      req.Label == q.CorrectAnswer,
		CorrectLabel: q.CorrectAnswer,
		Explanation:  q.Explanation,
		State:        live.sess.State().String(),
	}
	if live.sess.State() == session.StateInProgress {
		next := viewOf(live.sess.CurrentIndex(), live.sess.Exam()[live.sess.CurrentIndex()])
		resp.Question = &next
	}
	respondJSON(w, http.StatusOK, resp)
}

type resultResponse struct {
	Score    int                  `json:"score"`
	Total    int                  `json:"total"`
	Grade    float64              `json:"grade"`
	TimedOut bool                 `json:"timed_out"`
	Answers  []model.AnswerRecord `json:"answers"`
	Message  string               `json:"message"`
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	h.mu.Lock()
	defer h.mu.Unlock()

	live := h.getSession(r, token)
	if live == nil {
		respondError(w, r, http.StatusNotFound, "SessionNotFound", "")
		return
	}

	res, err := live.sess.Result()
	if err != nil {
		respondError(w, r, http.StatusConflict, "SessionStillRunning", "")
		return
	}

	message := appI18n.T(r.Context(), "ResultSaved")
	if res.TimedOut {
		message = appI18n.Td(r.Context(), "TimeUp", map[string]any{"Score": res.Score, "Total": res.Total})
	}

	if !live.archived {
		_, err := h.store.AppendHistory(model.HistoryRecord{
			OwnerID:     live.ownerID,
			CourseLabel: live.courseLabel,
			Score:       res.Score,
			Total:       res.Total,
			TimedOut:    res.TimedOut,
			CompletedAt: time.Now(),
			Answers:     res.Answers,
		})
		if err != nil {
			slog.Error("failed to archive session", "error", err)
			respondError(w, r, http.StatusInternalServerError, "SessionNotFound", err.Error())
			return
		}
		live.archived = true
	}
	// The terminal result has been read and archived; the session is done.
	delete(h.sessions, token)

	respondJSON(w, http.StatusOK, resultResponse{
		Score:    res.Score,
		Total:    res.Total,
		Grade:    res.Grade(),
		TimedOut: res.TimedOut,
		Answers:  res.Answers,
		Message:  message,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	records, err := h.store.ListHistory(user.ID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "GenerationFailed", err.Error())
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

type publishRequest struct {
	ExamToken string `json:"exam_token"`
	Title     string `json:"title"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "ExamNotFound", err.Error())
		return
	}

	h.mu.Lock()
	pending, ok := h.exams[req.ExamToken]
	h.mu.Unlock()
	if !ok || pending.ownerID != user.ID {
		respondError(w, r, http.StatusNotFound, "ExamNotFound", "")
		return
	}

	title := req.Title
	if title == "" {
		title = pending.courseLabel
	}
	id, err := h.store.PublishExam(user.ID, title, pending.exam)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "ExamNotFound", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"library_id": id,
		"message":    appI18n.T(r.Context(), "ExamPublished"),
	})
}

func (h *Handler) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListLibrary()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "ExamNotFound", err.Error())
		return
	}
	if entries == nil {
		entries = []model.LibraryEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msgID, detail string) {
	body := map[string]string{"error": appI18n.T(r.Context(), msgID)}
	if detail != "" {
		body["detail"] = detail
	}
	respondJSON(w, status, body)
}

func respondContractError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *session.ContractError
	if errors.As(err, &cerr) {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": cerr.Reason,
			"kind":  "contract_violation",
		})
		return
	}
	respondError(w, r, http.StatusInternalServerError, "SessionNotFound", err.Error())
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
