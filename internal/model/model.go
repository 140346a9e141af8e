package model

import "time"

// Feasibility is the verdict of the blueprint feasibility check.
type Feasibility string

const (
	// Feasible means the blueprint fits the user's time budget as-is.
	Feasible Feasibility = "feasible"
	// TooAmbitious means the blueprint covers too much for the time budget.
	TooAmbitious Feasibility = "too_ambitious"
	// TooLittleContent means the time budget allows for more material.
	TooLittleContent Feasibility = "too_little_content"
)

// QualityCheck is the verdict of the blueprint quality review.
type QualityCheck string

const (
	LooksGood     QualityCheck = "looks_good"
	NeedsRevision QualityCheck = "needs_revision"
)

// TestAction is what the user did with an adaptive test question.
type TestAction string

const (
	ActionSubmit  TestAction = "submit"
	ActionSkip    TestAction = "skip"
	ActionUnknown TestAction = "unknown"
)

// UserChoices holds the six preference fields gathered conversationally,
// plus the confirmed blueprint fields and the adaptive test summary.
// Frozen once generation starts, except Level and TestTaken which the
// adaptive test engine may overwrite.
type UserChoices struct {
	Topic      string `json:"topic"`
	Goal       string `json:"goal"`
	Level      string `json:"level"`
	Commitment string `json:"commitment"`
	Duration   string `json:"duration"`
	Style      string `json:"style"`

	FinalTitle       string   `json:"finalTitle,omitempty"`
	FinalDescription string   `json:"finalDescription,omitempty"`
	FinalObjectives  []string `json:"finalObjectives,omitempty"`
	TestTaken        string   `json:"testTaken,omitempty"`
}

// Complete reports whether all six conversational fields are filled.
func (c UserChoices) Complete() bool {
	return c.Topic != "" && c.Goal != "" && c.Level != "" &&
		c.Commitment != "" && c.Duration != "" && c.Style != ""
}

// CourseBlueprint is the high-level course skeleton produced before full
// content generation. Refinement always replaces it wholesale.
type CourseBlueprint struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Objectives  []string `json:"objectives"`
}

// FeasibilityVerdict is the structured result of the feasibility check.
type FeasibilityVerdict struct {
	Feasibility         Feasibility `json:"feasibility"`
	Suggestion          string      `json:"suggestion,omitempty"`
	RefinedChapterCount int         `json:"refined_chapter_count,omitempty"`
}

// QualityVerdict is the structured result of the quality review. The
// suggestion text is forwarded verbatim into later prompts, never parsed.
type QualityVerdict struct {
	QualityCheck QualityCheck `json:"quality_check"`
	Suggestions  string       `json:"suggestions,omitempty"`
}

// CourseLesson is one lesson inside a chapter. Content is HTML authored
// by the generator.
type CourseLesson struct {
	Title                    string   `json:"title"`
	Content                  string   `json:"content"`
	XPValue                  int      `json:"xpValue"`
	EstimatedDurationMinutes int      `json:"estimatedDurationMinutes"`
	IsCompleted              bool     `json:"isCompleted"`
	SuggestedSearchTerms     []string `json:"suggestedSearchTerms"`
}

// CourseExercise is an optional per-chapter exercise.
type CourseExercise struct {
	Title    string `json:"title"`
	Task     string `json:"task"`
	Solution string `json:"solution"`
}

// CourseChapter is a titled section with an introduction, ordered lessons
// and an optional exercise.
type CourseChapter struct {
	Title        string          `json:"title"`
	Introduction string          `json:"introduction"`
	Lessons      []CourseLesson  `json:"lessons"`
	Exercise     *CourseExercise `json:"exercise,omitempty"`
}

// CourseData is a fully generated course. Totals are fixed at assembly;
// the progress counters move only through the store's progress tracking.
type CourseData struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Chapters []CourseChapter `json:"chapters"`

	TotalCourseXP      int `json:"totalCourseXP"`
	TotalCourseMinutes int `json:"totalCourseMinutes"`

	CurrentProgressXP      int `json:"currentProgressXP"`
	CurrentProgressMinutes int `json:"currentProgressMinutes"`
	CompletedLessonCount   int `json:"completedLessonCount"`
}

// StoredCourse wraps CourseData with the persistence metadata shown in
// course listings.
type StoredCourse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SavedAt      time.Time  `json:"savedAt"`
	ChapterCount int        `json:"chapterCount"`
	Course       CourseData `json:"course"`
}

// TestQuestion is one adaptive test question. Topic is expected to be a
// fine-grained label ("CSS Flexbox Alignment", not "CSS"); the engine
// forwards whatever the generator produced.
type TestQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
	Topic    string   `json:"topic"`
}

// TestAnswer records one handled question.
type TestAnswer struct {
	Question TestQuestion `json:"question"`
	Action   TestAction   `json:"action"`
	// Selected is the chosen option index for submit actions, -1 otherwise.
	Selected int `json:"selected"`
}

// KnowledgeMap tracks topic strengths and weaknesses accumulated during
// the adaptive test. A topic is never in both lists at once.
type KnowledgeMap struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// AdaptiveTestState is the quiz state machine snapshot. Created inert,
// activated on test start, discarded with the session.
type AdaptiveTestState struct {
	IsActive        bool          `json:"isActive"`
	QuestionCount   int           `json:"questionCount"`
	CurrentIndex    int           `json:"currentIndex"`
	CurrentQuestion *TestQuestion `json:"currentQuestion,omitempty"`
	History         []TestAnswer  `json:"history"`
	Difficulty      int           `json:"difficulty"`
	KnowledgeMap    KnowledgeMap  `json:"knowledgeMap"`

	// FetchFailures counts consecutive question fetch errors; the test
	// is force-ended once it reaches the engine's limit.
	FetchFailures int `json:"fetchFailures"`
}
