// Package adaptive implements the placement test that calibrates course
// difficulty before generation. Questions are generated one at a time;
// each answer moves the difficulty level and the topic knowledge map,
// and the final summary feeds into the content prompts.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pathly-ai/pathly/internal/llm"
	"github.com/pathly-ai/pathly/internal/llm/prompts"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/sanitize"
)

const (
	// DefaultQuestionCount is the standard test length.
	DefaultQuestionCount = 8
	// StartDifficulty is the midpoint of the 1-10 difficulty range.
	StartDifficulty = 5

	minDifficulty = 1
	maxDifficulty = 10

	// maxFetchFailures is the consecutive question fetch errors allowed
	// before the test is force-ended with whatever was answered so far.
	maxFetchFailures = 3

	summaryLimit = 1500
)

// ErrTooManyFailures signals that question fetching failed repeatedly
// and the caller must finalize the test with the partial history.
var ErrTooManyFailures = errors.New("adaptive test aborted after repeated question fetch failures")

// Level labels assigned from the final score.
const (
	LevelBeginner   = "Absolute Beginner (Test-based)"
	LevelFoundation = "Solid Foundational Level (Test-based)"
	LevelAdvanced   = "Advanced Level (Test-based)"
)

// Generator is the model call surface the engine needs.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Engine fetches adaptive questions and applies answer transitions.
type Engine struct {
	gen   Generator
	retry llm.RetryPolicy
}

// New creates an engine using the given generator and retry policy.
func New(gen Generator, retry llm.RetryPolicy) *Engine {
	return &Engine{gen: gen, retry: retry}
}

// NewState returns an inert test state at the starting difficulty.
// questionCount <= 0 selects the default length.
func NewState(questionCount int) model.AdaptiveTestState {
	if questionCount <= 0 {
		questionCount = DefaultQuestionCount
	}
	return model.AdaptiveTestState{
		QuestionCount: questionCount,
		Difficulty:    StartDifficulty,
		History:       []model.TestAnswer{},
		KnowledgeMap: model.KnowledgeMap{
			Strengths:  []string{},
			Weaknesses: []string{},
		},
	}
}

// NextQuestion generates the next question for the current state and
// stores it as the state's current question. After maxFetchFailures
// consecutive errors it returns ErrTooManyFailures.
func (e *Engine) NextQuestion(ctx context.Context, topic, level string, st *model.AdaptiveTestState) (*model.TestQuestion, error) {
	previous := make([]model.TestQuestion, 0, len(st.History))
	for _, h := range st.History {
		previous = append(previous, h.Question)
	}
	prompt := prompts.TestQuestion(topic, level, st.Difficulty,
		st.KnowledgeMap.Strengths, st.KnowledgeMap.Weaknesses, previous)

	raw, err := e.retry.Do(ctx, "test question", func(ctx context.Context) (string, error) {
		out, err := e.gen.GenerateJSON(ctx, prompts.SystemQuizMaster, prompt, prompts.TemperatureQuiz)
		if err != nil {
			return "", err
		}
		var q model.TestQuestion
		if err := sanitize.Decode(out, &q); err != nil {
			return "", &llm.Error{Kind: llm.KindBadFormat, Err: err}
		}
		if err := validateQuestion(q); err != nil {
			return "", &llm.Error{Kind: llm.KindBadFormat, Err: err}
		}
		return out, nil
	})
	if err != nil {
		st.FetchFailures++
		if st.FetchFailures >= maxFetchFailures {
			return nil, fmt.Errorf("%w: %v", ErrTooManyFailures, err)
		}
		return nil, err
	}

	var q model.TestQuestion
	if err := sanitize.Decode(raw, &q); err != nil {
		return nil, err
	}
	if q.Topic == "" {
		q.Topic = "general"
	}
	st.FetchFailures = 0
	st.CurrentQuestion = &q
	return &q, nil
}

func validateQuestion(q model.TestQuestion) error {
	if strings.TrimSpace(q.Question) == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) != 4 {
		return fmt.Errorf("question has %d options, want 4", len(q.Options))
	}
	if q.Correct < 0 || q.Correct > 3 {
		return fmt.Errorf("correct index %d out of range", q.Correct)
	}
	return nil
}

// Apply records the user's handling of the current question and moves
// difficulty and the knowledge map accordingly. selected is ignored for
// skip and unknown actions.
func Apply(st *model.AdaptiveTestState, action model.TestAction, selected int) error {
	if st.CurrentQuestion == nil {
		return errors.New("no current question")
	}
	q := *st.CurrentQuestion
	topic := q.Topic
	if topic == "" {
		topic = "general"
	}

	answer := model.TestAnswer{Question: q, Action: action, Selected: -1}
	km := &st.KnowledgeMap

	switch action {
	case model.ActionSkip:
		st.Difficulty = min(maxDifficulty, st.Difficulty+1)
		// A skipped topic counts as known, unless it already showed up
		// as a weakness.
		if !contains(km.Strengths, topic) && !contains(km.Weaknesses, topic) {
			km.Strengths = append(km.Strengths, topic)
		}
	case model.ActionUnknown:
		st.Difficulty = max(minDifficulty, st.Difficulty-2)
		markWeak(km, topic)
	case model.ActionSubmit:
		if selected < 0 || selected > 3 {
			return fmt.Errorf("selected option %d out of range", selected)
		}
		answer.Selected = selected
		if selected == q.Correct {
			st.Difficulty = min(maxDifficulty, st.Difficulty+1)
			markStrong(km, topic)
		} else {
			st.Difficulty = max(minDifficulty, st.Difficulty-1)
			markWeak(km, topic)
		}
	default:
		return fmt.Errorf("unknown test action %q", action)
	}

	st.History = append(st.History, answer)
	st.CurrentIndex++
	st.CurrentQuestion = nil
	return nil
}

// Finished reports whether every planned question has been handled.
func Finished(st model.AdaptiveTestState) bool {
	return st.CurrentIndex >= st.QuestionCount
}

// Score returns the fraction of submitted answers that were correct.
// Skips and unknowns do not count toward the denominator; a test with no
// submissions scores zero.
func Score(st model.AdaptiveTestState) float64 {
	correct, submitted := 0, 0
	for _, h := range st.History {
		if h.Action != model.ActionSubmit {
			continue
		}
		submitted++
		if h.Selected == h.Question.Correct {
			correct++
		}
	}
	if submitted == 0 {
		return 0
	}
	return float64(correct) / float64(submitted)
}

// LevelFor maps a score to the assessed level label.
func LevelFor(score float64) string {
	switch {
	case score < 0.3:
		return LevelBeginner
	case score < 0.7:
		return LevelFoundation
	default:
		return LevelAdvanced
	}
}

// Finalize deactivates the test and writes the assessed level and the
// summary into the user's choices. forced marks a premature end.
func Finalize(st *model.AdaptiveTestState, choices *model.UserChoices, forced bool) {
	correct, submitted := 0, 0
	for _, h := range st.History {
		if h.Action == model.ActionSubmit {
			submitted++
			if h.Selected == h.Question.Correct {
				correct++
			}
		}
	}
	score := Score(*st)
	level := LevelFor(score)

	summary := choices.TestTaken
	if summary == "" {
		summary = "Adaptive Test Summary:"
	}
	if !strings.Contains(summary, "completed") && !strings.Contains(summary, "ended prematurely") {
		outcome := "completed"
		if forced && len(st.History) < st.QuestionCount {
			outcome = "prematurely ended"
		}
		var sb strings.Builder
		sb.WriteString(summary)
		fmt.Fprintf(&sb, "\nThe adaptive test was %s after %d of %d questions.\n", outcome, len(st.History), st.QuestionCount)
		fmt.Fprintf(&sb, "Result: %d of %d questions answered correctly (%d%%).\n", correct, submitted, int(math.Round(score*100)))
		fmt.Fprintf(&sb, "New estimated level: %s.\n", level)
		fmt.Fprintf(&sb, "Identified strengths: %s\n", joinOrNone(st.KnowledgeMap.Strengths))
		fmt.Fprintf(&sb, "Identified weaknesses: %s\n", joinOrNone(st.KnowledgeMap.Weaknesses))
		sb.WriteString("These results will be used to fine-tune the course.")
		summary = sb.String()
	}

	choices.Level = level
	choices.TestTaken = truncate(summary, summaryLimit)
	st.IsActive = false
}

// RecordFetchError appends a question load error note to the running
// summary, keeping the total bounded.
func RecordFetchError(st model.AdaptiveTestState, choices *model.UserChoices, errDetail string) {
	note := fmt.Sprintf("\nError on question #%d: %s...", st.CurrentIndex+1, truncate(errDetail, 200))
	if len(choices.TestTaken)+len(note) < 1000 {
		choices.TestTaken += note
	}
}

func markWeak(km *model.KnowledgeMap, topic string) {
	if !contains(km.Weaknesses, topic) {
		km.Weaknesses = append(km.Weaknesses, topic)
	}
	km.Strengths = remove(km.Strengths, topic)
}

func markStrong(km *model.KnowledgeMap, topic string) {
	if !contains(km.Strengths, topic) {
		km.Strengths = append(km.Strengths, topic)
	}
	km.Weaknesses = remove(km.Weaknesses, topic)
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

func remove(items []string, s string) []string {
	out := items[:0]
	for _, it := range items {
		if it != s {
			out = append(out, it)
		}
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so the cut stays valid UTF-8.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
