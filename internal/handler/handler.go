package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pathly-ai/pathly/internal/adaptive"
	"github.com/pathly-ai/pathly/internal/i18n"
	"github.com/pathly-ai/pathly/internal/intake"
	"github.com/pathly-ai/pathly/internal/llm"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/pipeline"
	"github.com/pathly-ai/pathly/internal/session"
	"github.com/pathly-ai/pathly/internal/store"
)

// Config carries handler-level settings.
type Config struct {
	// QuestionCount sizes each session's adaptive test.
	QuestionCount int
	// GenerateTimeout bounds one background course generation run.
	GenerateTimeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	llm      *llm.Client
	sessions *session.Manager
	pipeline *pipeline.Pipeline
	engine   *adaptive.Engine
	config   Config
}

// New creates a new Handler.
func New(s *store.Store, l *llm.Client, sessions *session.Manager, p *pipeline.Pipeline, e *adaptive.Engine, cfg Config) *Handler {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 30 * time.Minute
	}
	return &Handler{store: s, llm: l, sessions: sessions, pipeline: p, engine: e, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)

	r.Post("/api/sessions", h.handleCreateSession)
	r.Delete("/api/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/api/sessions/{sessionID}/reset", h.handleResetSession)
	r.Post("/api/sessions/{sessionID}/chat", h.handleChat)
	r.Post("/api/sessions/{sessionID}/test/start", h.handleStartTest)
	r.Get("/api/sessions/{sessionID}/test/question", h.handleTestQuestion)
	r.Post("/api/sessions/{sessionID}/test/answer", h.handleTestAnswer)
	r.Post("/api/sessions/{sessionID}/test/finish", h.handleFinishTest)
	r.Post("/api/sessions/{sessionID}/generate", h.handleGenerate)
	r.Get("/api/sessions/{sessionID}/progress", h.handleProgress)

	r.Get("/api/courses", h.handleListCourses)
	r.Get("/api/courses/export", h.handleExport)
	r.Post("/api/courses/import", h.handleImport)
	r.Get("/api/courses/{courseID}", h.handleGetCourse)
	r.Post("/api/courses", h.handleSaveCourse)
	r.Delete("/api/courses/{courseID}", h.handleDeleteCourse)
	r.Post("/api/courses/{courseID}/chapters/{chapter}/lessons/{lesson}/toggle", h.handleToggleLesson)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// getSession resolves the session from the URL, or writes a 404.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	s, ok := h.sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	status := "ok"
	llmStatus := "ok"
	if err := h.llm.Ping(ctx); err != nil {
		llmStatus = err.Error()
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status, "llm": llmStatus})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	respondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": s.ID,
		"phase":     s.Phase,
		"greeting":  i18n.T(r.Context(), "ChatGreeting"),
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	s.Reset(h.config.QuestionCount)
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": s.ID,
		"phase":     session.PhaseIntake,
		"greeting":  i18n.T(r.Context(), "ChatGreeting"),
	})
}

type chatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

type chatResponse struct {
	intake.Reply
	Phase     session.Phase          `json:"phase"`
	Blueprint *model.CourseBlueprint `json:"blueprint,omitempty"`
	Warning   string                 `json:"warning,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	s.Lock()
	defer s.Unlock()
	if s.Phase != session.PhaseIntake && s.Phase != session.PhaseConfirmation {
		respondError(w, http.StatusConflict, fmt.Sprintf("chat not available in phase %q", s.Phase))
		return
	}

	if req.Stream {
		h.chatStreaming(w, r, s, req.Message)
		return
	}

	reply, err := s.Conversation.Handle(r.Context(), h.llm, req.Message)
	if err != nil {
		slog.Error("chat turn failed", "session", s.ID, "error", err)
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.applyReply(r.Context(), s, reply))
}

// chatStreaming runs an intake turn over server-sent events: "delta"
// events carry assistant text as it arrives, one final "reply" event
// carries the structured outcome.
func (h *Handler) chatStreaming(w http.ResponseWriter, r *http.Request, s *session.Session, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	chat := &streamingChatter{
		client: h.llm,
		emit: func(delta string) {
			data, _ := json.Marshal(delta)
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", data)
			flusher.Flush()
		},
	}

	reply, err := s.Conversation.Handle(r.Context(), chat, message)
	if err != nil {
		slog.Error("chat turn failed", "session", s.ID, "error", err)
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}

	data, err := json.Marshal(h.applyReply(r.Context(), s, reply))
	if err != nil {
		slog.Error("encode reply", "error", err)
		return
	}
	fmt.Fprintf(w, "event: reply\ndata: %s\n\n", data)
	flusher.Flush()
}

// streamingChatter adapts the streaming client API to the intake's
// blocking Chatter interface.
type streamingChatter struct {
	client *llm.Client
	emit   func(delta string)
}

func (c *streamingChatter) Chat(ctx context.Context, system string, history []llm.Message, temperature float32) (string, error) {
	return c.client.ChatStream(ctx, system, history, temperature, c.emit)
}

// applyReply folds one intake outcome into the session and builds the
// response. Caller holds the session lock.
func (h *Handler) applyReply(ctx context.Context, s *session.Session, reply intake.Reply) chatResponse {
	resp := chatResponse{Reply: reply, Phase: s.Phase}

	if reply.AwaitingConfirmation {
		s.Phase = session.PhaseConfirmation
		resp.Phase = s.Phase
		if reply.LimitExceeded {
			resp.Warning = i18n.Td(ctx, "HourLimitWarning", map[string]any{
				"Hours": int(reply.EstimatedHours),
				"Limit": pipeline.HourLimit,
			})
		}
		return resp
	}

	if reply.Confirmed && reply.Choices != nil {
		s.Choices = *reply.Choices
		bp, err := h.pipeline.GenerateBlueprint(ctx, s.Choices, "")
		if err != nil {
			slog.Error("blueprint generation failed", "session", s.ID, "error", err)
			// Stay in confirmation; the client may retry generation.
			s.Phase = session.PhaseConfirmation
			resp.Phase = s.Phase
			resp.Warning = i18n.T(ctx, "BlueprintFailed")
			return resp
		}
		s.Blueprint = &bp
		s.Phase = session.PhaseConfirmation
		resp.Phase = s.Phase
		resp.Blueprint = &bp
	}
	return resp
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()

	if s.Phase != session.PhaseConfirmation {
		respondError(w, http.StatusConflict, "test requires a confirmed configuration")
		return
	}

	s.Test = adaptive.NewState(h.config.QuestionCount)
	s.Test.IsActive = true
	s.Phase = session.PhaseTesting

	q, err := h.engine.NextQuestion(r.Context(), s.Choices.Topic, s.Choices.Level, &s.Test)
	if err != nil {
		h.testFetchFailed(w, s, err)
		return
	}
	respondJSON(w, http.StatusOK, h.testView(s, q))
}

func (h *Handler) handleTestQuestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()

	if !s.Test.IsActive {
		respondError(w, http.StatusConflict, "no active test")
		return
	}
	respondJSON(w, http.StatusOK, h.testView(s, s.Test.CurrentQuestion))
}

type answerRequest struct {
	Action   model.TestAction `json:"action"`
	Selected int              `json:"selected"`
}

func (h *Handler) handleTestAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.Lock()
	defer s.Unlock()

	if !s.Test.IsActive {
		respondError(w, http.StatusConflict, "no active test")
		return
	}
	if err := adaptive.Apply(&s.Test, req.Action, req.Selected); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if adaptive.Finished(s.Test) {
		adaptive.Finalize(&s.Test, &s.Choices, false)
		s.Phase = session.PhaseConfirmation
		respondJSON(w, http.StatusOK, h.testView(s, nil))
		return
	}

	q, err := h.engine.NextQuestion(r.Context(), s.Choices.Topic, s.Choices.Level, &s.Test)
	if err != nil {
		h.testFetchFailed(w, s, err)
		return
	}
	respondJSON(w, http.StatusOK, h.testView(s, q))
}

func (h *Handler) handleFinishTest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()

	if !s.Test.IsActive {
		respondError(w, http.StatusConflict, "no active test")
		return
	}
	adaptive.Finalize(&s.Test, &s.Choices, true)
	s.Phase = session.PhaseConfirmation
	respondJSON(w, http.StatusOK, h.testView(s, nil))
}

// testFetchFailed handles a question fetch error: repeated failures
// force-end the test with whatever was gathered, a transient one is
// reported for retry. Caller holds the session lock.
func (h *Handler) testFetchFailed(w http.ResponseWriter, s *session.Session, err error) {
	slog.Error("test question fetch failed", "session", s.ID, "error", err)
	adaptive.RecordFetchError(s.Test, &s.Choices, err.Error())
	if errors.Is(err, adaptive.ErrTooManyFailures) {
		adaptive.Finalize(&s.Test, &s.Choices, true)
		s.Phase = session.PhaseConfirmation
		resp := h.testView(s, nil)
		resp["aborted"] = true
		respondJSON(w, http.StatusOK, resp)
		return
	}
	respondError(w, http.StatusBadGateway, err.Error())
}

// testView builds the client-facing test snapshot. Correct answers are
// only revealed for questions already in the history.
func (h *Handler) testView(s *session.Session, q *model.TestQuestion) map[string]any {
	view := map[string]any{
		"active":        s.Test.IsActive,
		"questionCount": s.Test.QuestionCount,
		"currentIndex":  s.Test.CurrentIndex,
		"difficulty":    s.Test.Difficulty,
		"knowledgeMap":  s.Test.KnowledgeMap,
		"phase":         s.Phase,
	}
	if q != nil {
		view["question"] = map[string]any{
			"question": q.Question,
			"options":  q.Options,
			"topic":    q.Topic,
		}
	}
	if !s.Test.IsActive {
		view["level"] = s.Choices.Level
		view["summary"] = s.Choices.TestTaken
		view["history"] = s.Test.History
	}
	return view
}

type generateRequest struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Objectives  []string `json:"objectives,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	s.Lock()
	defer s.Unlock()

	if s.Phase == session.PhaseGenerating {
		respondError(w, http.StatusConflict, "generation already running")
		return
	}
	if s.Phase != session.PhaseConfirmation || s.Blueprint == nil {
		respondError(w, http.StatusConflict, "generation requires a confirmed configuration")
		return
	}

	// Client edits replace the blueprint's own wording; the pipeline
	// derives the chapter count from the objectives it receives.
	bp := *s.Blueprint
	bp.Title = firstNonEmpty(req.Title, bp.Title)
	bp.Description = firstNonEmpty(req.Description, bp.Description)
	if len(req.Objectives) > 0 {
		bp.Objectives = req.Objectives
	}
	s.Blueprint = &bp
	s.Choices.FinalTitle = bp.Title
	s.Choices.FinalDescription = bp.Description
	s.Choices.FinalObjectives = bp.Objectives

	s.Phase = session.PhaseGenerating
	choices := s.Choices

	go h.runGeneration(s, choices, bp)

	respondJSON(w, http.StatusAccepted, map[string]any{"phase": session.PhaseGenerating})
}

func (h *Handler) runGeneration(s *session.Session, choices model.UserChoices, bp model.CourseBlueprint) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.GenerateTimeout)
	defer cancel()

	result, err := h.pipeline.Run(ctx, choices, bp, s.SetProgress)
	if err != nil {
		slog.Error("course generation failed", "session", s.ID, "error", err)
		s.FinishGeneration(result, err)
		return
	}

	if _, serr := h.store.SaveCourse(result.Course); serr != nil {
		slog.Error("course save failed", "session", s.ID, "course", result.Course.ID, "error", serr)
		s.FinishGeneration(result, serr)
		return
	}
	slog.Info("course generated", "session", s.ID, "course", result.Course.ID,
		"chapters", len(result.Course.Chapters), "degraded", len(result.Degraded))
	s.FinishGeneration(result, nil)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	event, hasEvent := s.Progress()

	s.Lock()
	phase := s.Phase
	course := s.Course
	degraded := s.Degraded
	s.Unlock()

	resp := map[string]any{"phase": phase}
	if hasEvent {
		resp["progress"] = event
	}
	if err := s.GenerationError(); err != nil {
		resp["error"] = err.Error()
	}
	if phase == session.PhaseDone && course != nil {
		resp["courseId"] = course.ID
		if len(degraded) > 0 {
			resp["degradedChapters"] = degraded
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.store.ListCourses()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if courses == nil {
		courses = []model.StoredCourse{}
	}
	respondJSON(w, http.StatusOK, courses)
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	sc, err := h.store.GetCourse(chi.URLParam(r, "courseID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sc == nil {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (h *Handler) handleSaveCourse(w http.ResponseWriter, r *http.Request) {
	var course model.CourseData
	if err := decodeBody(r, &course); err != nil {
		respondError(w, http.StatusBadRequest, "invalid course JSON")
		return
	}
	sc, err := h.store.SaveCourse(course)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sc)
}

func (h *Handler) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCourse(chi.URLParam(r, "courseID")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleLesson(w http.ResponseWriter, r *http.Request) {
	chapter, err := strconv.Atoi(chi.URLParam(r, "chapter"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chapter index")
		return
	}
	lesson, err := strconv.Atoi(chi.URLParam(r, "lesson"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid lesson index")
		return
	}

	sc, err := h.store.ToggleLesson(chi.URLParam(r, "courseID"), chapter, lesson)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sc == nil {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=pathly-backup-%s.json", time.Now().Format("2006-01-02")))
	respondJSON(w, http.StatusOK, export)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	courses, err := store.ParseImport(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.store.ImportCourses(courses)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
