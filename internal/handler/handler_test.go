package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pathly-ai/pathly/internal/i18n"
	"github.com/pathly-ai/pathly/internal/llm"
	"github.com/pathly-ai/pathly/internal/llm/prompts"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/pipeline"
	"github.com/pathly-ai/pathly/internal/session"
	"github.com/pathly-ai/pathly/internal/store"
)

type testEnv struct {
	srv      *httptest.Server
	db       *store.Store
	sessions *session.Manager
}

// scriptedGen returns canned responses per system instruction, in order,
// and records every prompt it saw.
type scriptedGen struct {
	mu       sync.Mutex
	bySystem map[string][]string
	idx      map[string]int
	prompts  []string
}

func newScriptedGen() *scriptedGen {
	return &scriptedGen{bySystem: map[string][]string{}, idx: map[string]int{}}
}

func (g *scriptedGen) GenerateJSON(_ context.Context, system, prompt string, _ float32) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	queue := g.bySystem[system]
	i := g.idx[system]
	if i >= len(queue) {
		return "", fmt.Errorf("script exhausted for system prompt")
	}
	g.idx[system] = i + 1
	return queue[i], nil
}

func (g *scriptedGen) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func newTestServer(t *testing.T, gen pipeline.Generator) testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	retry := llm.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond,
		Sleep: func(context.Context, time.Duration) error { return nil }}
	p := pipeline.New(gen, retry, nil)

	sessions := session.NewManager(8, time.Hour)
	h := New(db, nil, sessions, p, nil, Config{QuestionCount: 8})

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, db: db, sessions: sessions}
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url string, body, v any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func sampleCourse(id string) model.CourseData {
	return model.CourseData{
		ID:    id,
		Title: "Course " + id,
		Chapters: []model.CourseChapter{{
			Title: "Intro",
			Lessons: []model.CourseLesson{
				{Title: "L1", Content: "<p>hi</p>", XPValue: 10, EstimatedDurationMinutes: 20, SuggestedSearchTerms: []string{}},
			},
		}},
		TotalCourseXP:      10,
		TotalCourseMinutes: 20,
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil).srv

	var created struct {
		SessionID string `json:"sessionId"`
		Phase     string `json:"phase"`
		Greeting  string `json:"greeting"`
	}
	resp := postJSON(t, srv.URL+"/api/sessions", nil, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	if created.SessionID == "" {
		t.Fatal("no session ID returned")
	}
	if created.Phase != string(session.PhaseIntake) {
		t.Errorf("phase = %q, want intake", created.Phase)
	}
	if created.Greeting == "" {
		t.Error("no greeting returned")
	}

	// Reset keeps the ID and returns to the intake phase.
	var reset struct {
		SessionID string `json:"sessionId"`
		Phase     string `json:"phase"`
	}
	resp = postJSON(t, srv.URL+"/api/sessions/"+created.SessionID+"/reset", nil, &reset)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: status %d", resp.StatusCode)
	}
	if reset.SessionID != created.SessionID {
		t.Errorf("reset changed session ID: %q != %q", reset.SessionID, created.SessionID)
	}

	// Starting a test before confirmation is rejected.
	resp = postJSON(t, srv.URL+"/api/sessions/"+created.SessionID+"/test/start", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("test start in intake: status %d, want 409", resp.StatusCode)
	}

	// Generating without a blueprint is rejected.
	resp = postJSON(t, srv.URL+"/api/sessions/"+created.SessionID+"/generate", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("generate in intake: status %d, want 409", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+created.SessionID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", delResp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sessions/"+created.SessionID+"/reset", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reset deleted session: status %d, want 404", resp.StatusCode)
	}
}

func TestCourseEndpoints(t *testing.T) {
	srv := newTestServer(t, nil).srv

	var stored model.StoredCourse
	resp := postJSON(t, srv.URL+"/api/courses", sampleCourse("c1"), &stored)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save course: status %d", resp.StatusCode)
	}
	if stored.ID != "c1" || stored.ChapterCount != 1 {
		t.Errorf("unexpected stored course: %+v", stored)
	}

	var list []model.StoredCourse
	getJSON(t, srv.URL+"/api/courses", &list)
	if len(list) != 1 {
		t.Fatalf("list = %d courses, want 1", len(list))
	}

	var got model.StoredCourse
	getJSON(t, srv.URL+"/api/courses/c1", &got)
	if got.Course.TotalCourseXP != 10 {
		t.Errorf("TotalCourseXP = %d, want 10", got.Course.TotalCourseXP)
	}

	resp = getJSON(t, srv.URL+"/api/courses/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing course: status %d, want 404", resp.StatusCode)
	}

	var toggled model.StoredCourse
	resp = postJSON(t, srv.URL+"/api/courses/c1/chapters/0/lessons/0/toggle", nil, &toggled)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: status %d", resp.StatusCode)
	}
	if !toggled.Course.Chapters[0].Lessons[0].IsCompleted {
		t.Error("lesson not completed after toggle")
	}
	if toggled.Course.CurrentProgressXP != 10 {
		t.Errorf("progress XP = %d, want 10", toggled.Course.CurrentProgressXP)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/courses/c1", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete course: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", delResp.StatusCode)
	}

	list = nil
	getJSON(t, srv.URL+"/api/courses", &list)
	if len(list) != 0 {
		t.Errorf("list after delete = %d courses, want 0", len(list))
	}
}

func TestExportImportEndpoints(t *testing.T) {
	srv := newTestServer(t, nil).srv

	postJSON(t, srv.URL+"/api/courses", sampleCourse("c1"), nil)
	postJSON(t, srv.URL+"/api/courses", sampleCourse("c2"), nil)

	var export model.CourseExport
	resp := getJSON(t, srv.URL+"/api/courses/export", &export)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}
	if export.Count != 2 {
		t.Fatalf("export count = %d, want 2", export.Count)
	}

	// Import the same backup into a second server.
	srv2 := newTestServer(t, nil).srv
	body, err := json.Marshal(export)
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	importResp, err := http.Post(srv2.URL+"/api/courses/import", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer importResp.Body.Close()

	var report model.ImportReport
	if err := json.NewDecoder(importResp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Accepted != 2 || report.Rejected != 0 {
		t.Fatalf("report = %+v, want 2 accepted", report)
	}
}

func TestGenerateUsesEditedObjectives(t *testing.T) {
	chapter := func(title string) string {
		return fmt.Sprintf(`{"introduction": "<p>%s</p>", "lessons": [
			{"title": "L1", "content": "<p>x</p>", "xpValue": 10,
			 "estimatedDurationMinutes": 15, "suggestedSearchTerms": []}]}`, title)
	}
	gen := newScriptedGen()
	gen.bySystem[prompts.SystemFeasibilityCheck] = []string{`{"feasibility": "feasible"}`}
	gen.bySystem[prompts.SystemQualityCheck] = []string{`{"quality_check": "looks_good"}`}
	gen.bySystem[prompts.SystemCourseDesign] = []string{`["A", "B", "C"]`}
	gen.bySystem[prompts.SystemContentGenerator] = []string{chapter("a"), chapter("b"), chapter("c")}
	env := newTestServer(t, gen)

	var created struct {
		SessionID string `json:"sessionId"`
	}
	postJSON(t, env.srv.URL+"/api/sessions", nil, &created)

	s, ok := env.sessions.Get(created.SessionID)
	if !ok {
		t.Fatal("session not found")
	}
	s.Lock()
	s.Phase = session.PhaseConfirmation
	s.Choices = model.UserChoices{Topic: "Go", Goal: "learn", Level: "beginner",
		Commitment: "3 hours/week", Duration: "4 weeks", Style: "hands-on"}
	s.Blueprint = &model.CourseBlueprint{
		Title:       "Go Basics",
		Description: "An introduction.",
		Objectives:  []string{"o1", "o2", "o3", "o4", "o5"},
	}
	s.Unlock()

	// The client trims the objective list down to three before generating.
	resp := postJSON(t, env.srv.URL+"/api/sessions/"+created.SessionID+"/generate",
		map[string]any{"objectives": []string{"e1", "e2", "e3"}}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate: status %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	var progress struct {
		Phase    string `json:"phase"`
		Error    string `json:"error"`
		CourseID string `json:"courseId"`
	}
	for {
		getJSON(t, env.srv.URL+"/api/sessions/"+created.SessionID+"/progress", &progress)
		if progress.Phase == string(session.PhaseDone) || progress.Error != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("generation did not finish, last phase %q", progress.Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if progress.Error != "" {
		t.Fatalf("generation failed: %s", progress.Error)
	}

	var outline string
	for _, p := range gen.recorded() {
		if strings.Contains(p, "chapter titles") {
			outline = p
			break
		}
	}
	if outline == "" {
		t.Fatal("no outline prompt recorded")
	}
	if !strings.Contains(outline, "exactly 3 chapter titles") {
		t.Errorf("outline ignores the edited objectives: %q", outline)
	}

	stored, err := env.db.GetCourse(progress.CourseID)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if stored == nil || len(stored.Course.Chapters) != 3 {
		t.Fatalf("stored course = %+v, want 3 chapters", stored)
	}
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t, nil).srv

	var created struct {
		SessionID string `json:"sessionId"`
	}
	postJSON(t, srv.URL+"/api/sessions", nil, &created)

	resp := postJSON(t, srv.URL+"/api/sessions/"+created.SessionID+"/chat",
		map[string]string{"message": ""}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message: status %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sessions/unknown/chat",
		map[string]string{"message": "hi"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", resp.StatusCode)
	}
}
