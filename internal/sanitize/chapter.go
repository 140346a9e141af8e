package sanitize

import (
	"encoding/json"
	"fmt"

	"github.com/pathly-ai/pathly/internal/model"
)

// rawLesson mirrors model.CourseLesson but keeps the optional fields as
// raw JSON, since smaller models regularly omit them or emit the wrong
// type ("50" for a number, an object for the term list). A mistyped
// field falls back to its zero value instead of failing the chapter.
type rawLesson struct {
	Title                    string          `json:"title"`
	Content                  string          `json:"content"`
	XPValue                  json.RawMessage `json:"xpValue"`
	EstimatedDurationMinutes json.RawMessage `json:"estimatedDurationMinutes"`
	IsCompleted              json.RawMessage `json:"isCompleted"`
	SuggestedSearchTerms     json.RawMessage `json:"suggestedSearchTerms"`
}

type rawChapter struct {
	Title        string                `json:"title"`
	Introduction string                `json:"introduction"`
	Lessons      []rawLesson           `json:"lessons"`
	Exercise     *model.CourseExercise `json:"exercise"`
}

func intField(raw json.RawMessage) int {
	var n int
	if raw == nil || json.Unmarshal(raw, &n) != nil {
		return 0
	}
	return n
}

func boolField(raw json.RawMessage) bool {
	var b bool
	if raw == nil || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

func stringListField(raw json.RawMessage) []string {
	out := []string{}
	var items []any
	if raw == nil || json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Chapter sanitizes raw model output and decodes it into a CourseChapter,
// backfilling lesson fields the generator omitted or mistyped: zero XP
// and duration, not completed, and an empty search term list with
// non-string entries dropped. The result is stable under repeated
// application.
func Chapter(raw string) (model.CourseChapter, error) {
	text, err := JSON(raw)
	if err != nil {
		return model.CourseChapter{}, err
	}
	var rc rawChapter
	if err := json.Unmarshal([]byte(text), &rc); err != nil {
		return model.CourseChapter{}, fmt.Errorf("decode chapter JSON: %w (%s)", err, preview(text))
	}

	ch := model.CourseChapter{
		Title:        rc.Title,
		Introduction: rc.Introduction,
		Lessons:      make([]model.CourseLesson, 0, len(rc.Lessons)),
		Exercise:     rc.Exercise,
	}
	for _, rl := range rc.Lessons {
		ch.Lessons = append(ch.Lessons, model.CourseLesson{
			Title:                    rl.Title,
			Content:                  rl.Content,
			XPValue:                  intField(rl.XPValue),
			EstimatedDurationMinutes: intField(rl.EstimatedDurationMinutes),
			IsCompleted:              boolField(rl.IsCompleted),
			SuggestedSearchTerms:     stringListField(rl.SuggestedSearchTerms),
		})
	}
	return ch, nil
}
