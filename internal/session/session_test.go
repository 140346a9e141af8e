package session

import (
	"errors"
	"testing"
	"time"

	"github.com/pathly-ai/pathly/internal/adaptive"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/pipeline"
)

func TestManagerCreateGet(t *testing.T) {
	m := NewManager(8, time.Hour)
	s := m.Create()
	if s.ID == "" {
		t.Fatal("session ID should be set")
	}
	if s.Phase != PhaseIntake {
		t.Errorf("Phase = %q, want intake", s.Phase)
	}
	if s.Test.QuestionCount != 8 || s.Test.Difficulty != adaptive.StartDifficulty {
		t.Errorf("test state = %+v", s.Test)
	}

	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Error("Get should return the same session")
	}
	if _, ok := m.Get("nope"); ok {
		t.Error("Get of unknown ID should fail")
	}
}

func TestManagerPrune(t *testing.T) {
	m := NewManager(8, time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	stale := m.Create()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh := m.Create()

	if removed := m.Prune(); removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if _, ok := m.Get(stale.ID); ok {
		t.Error("stale session should be gone")
	}
	if _, ok := m.Get(fresh.ID); !ok {
		t.Error("fresh session should survive")
	}
}

func TestSessionProgress(t *testing.T) {
	m := NewManager(8, time.Hour)
	s := m.Create()

	if _, ok := s.Progress(); ok {
		t.Error("fresh session should carry no progress")
	}
	s.SetProgress(pipeline.Event{Stage: "outline", Message: "working", Percent: 35})
	s.SetProgress(pipeline.Event{Stage: "content", Message: "chapter 1", Percent: 40})

	e, ok := s.Progress()
	if !ok || e.Percent != 40 || e.Stage != "content" {
		t.Errorf("Progress = %+v ok=%v", e, ok)
	}
}

func TestSessionFinishGeneration(t *testing.T) {
	m := NewManager(8, time.Hour)

	t.Run("success", func(t *testing.T) {
		s := m.Create()
		s.Phase = PhaseGenerating
		result := pipeline.Result{
			Course:    model.CourseData{ID: "c1", Title: "Go"},
			Blueprint: model.CourseBlueprint{Title: "Go"},
			Degraded:  []string{"Loops"},
		}
		s.FinishGeneration(result, nil)
		if s.Phase != PhaseDone || s.Course == nil || s.Course.ID != "c1" {
			t.Errorf("session after success: phase=%q course=%+v", s.Phase, s.Course)
		}
		if len(s.Degraded) != 1 {
			t.Errorf("Degraded = %v", s.Degraded)
		}
	})

	t.Run("failure returns to confirmation", func(t *testing.T) {
		s := m.Create()
		s.Phase = PhaseGenerating
		s.FinishGeneration(pipeline.Result{}, errors.New("outline failed"))
		if s.Phase != PhaseConfirmation || s.Course != nil {
			t.Errorf("session after failure: phase=%q course=%v", s.Phase, s.Course)
		}
		if s.GenerationError() == nil {
			t.Error("generation error should be retained")
		}
	})
}

func TestSessionReset(t *testing.T) {
	m := NewManager(8, time.Hour)
	s := m.Create()
	s.Phase = PhaseDone
	s.Choices = model.UserChoices{Topic: "Go"}
	s.Course = &model.CourseData{ID: "c1"}
	s.Test.Difficulty = 9
	s.SetProgress(pipeline.Event{Percent: 100})

	s.Reset(8)

	if s.Phase != PhaseIntake || s.Choices.Topic != "" || s.Course != nil {
		t.Errorf("reset left state behind: %+v", s)
	}
	if s.Test.Difficulty != adaptive.StartDifficulty {
		t.Errorf("test difficulty = %d, want reset", s.Test.Difficulty)
	}
	if _, ok := s.Progress(); ok {
		t.Error("reset should clear progress")
	}
	if s.Conversation == nil {
		t.Error("reset should start a fresh conversation")
	}
}
