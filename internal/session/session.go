// Package session keeps per-user configurator state in memory: the
// intake conversation, the collected choices, the blueprint, the
// adaptive test, and the generation progress. Sessions are keyed by
// opaque IDs handed to the client and expire after inactivity.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathly-ai/pathly/internal/adaptive"
	"github.com/pathly-ai/pathly/internal/intake"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/pipeline"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 2 * time.Hour

// Phase is the session's position in the course creation flow.
type Phase string

const (
	PhaseIntake       Phase = "intake"
	PhaseConfirmation Phase = "confirmation"
	PhaseTesting      Phase = "testing"
	PhaseGenerating   Phase = "generating"
	PhaseDone         Phase = "done"
)

// Session is one user's configurator state. Callers must hold the
// session lock (Lock/Unlock) around reads and writes of the exported
// fields; generation runs in the background and reports through
// SetProgress.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time

	Phase        Phase
	Conversation *intake.Conversation
	Choices      model.UserChoices
	Blueprint    *model.CourseBlueprint
	Test         model.AdaptiveTestState
	Course       *model.CourseData
	Degraded     []string

	progress    []pipeline.Event
	generateErr error
}

// Lock acquires the session for exclusive use.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// SetProgress appends a generation progress event. Safe to call from the
// generation goroutine.
func (s *Session) SetProgress(e pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, e)
}

// Progress returns the latest progress event and whether any exists.
func (s *Session) Progress() (pipeline.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress) == 0 {
		return pipeline.Event{}, false
	}
	return s.progress[len(s.progress)-1], true
}

// FinishGeneration records the outcome of a background generation run.
func (s *Session) FinishGeneration(result pipeline.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateErr = err
	if err != nil {
		s.Phase = PhaseConfirmation
		return
	}
	course := result.Course
	s.Course = &course
	s.Blueprint = &result.Blueprint
	s.Degraded = result.Degraded
	s.Phase = PhaseDone
}

// GenerationError returns the error from the last generation run, if any.
func (s *Session) GenerationError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateErr
}

// Reset returns the session to a fresh intake state, keeping its ID.
func (s *Session) Reset(questionCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = PhaseIntake
	s.Conversation = intake.NewConversation()
	s.Choices = model.UserChoices{}
	s.Blueprint = nil
	s.Test = newTestState(questionCount)
	s.Course = nil
	s.Degraded = nil
	s.progress = nil
	s.generateErr = nil
}

// Manager owns all live sessions.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	ttl           time.Duration
	questionCount int
	now           func() time.Time
}

// NewManager creates a session manager. questionCount sizes each
// session's adaptive test; ttl <= 0 uses DefaultTTL.
func NewManager(questionCount int, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		ttl:           ttl,
		questionCount: questionCount,
		now:           time.Now,
	}
}

// Create starts a new session in the intake phase.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		lastSeen:     now,
		Phase:        PhaseIntake,
		Conversation: intake.NewConversation(),
		Test:         newTestState(m.questionCount),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given ID, refreshing its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	s.lastSeen = m.now()
	s.mu.Unlock()
	return s, true
}

// Delete removes a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Prune drops sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Prune() int {
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func newTestState(questionCount int) model.AdaptiveTestState {
	return adaptive.NewState(questionCount)
}
