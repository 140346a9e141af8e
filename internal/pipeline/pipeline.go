// Package pipeline turns a confirmed course blueprint into a complete
// course: feasibility refinement, a quality review, a chapter outline,
// and per-chapter content generation with graceful degradation. Stages
// run strictly in sequence; each model call is paced and retried.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pathly-ai/pathly/internal/llm"
	"github.com/pathly-ai/pathly/internal/model"
)

const (
	// maxRefinements bounds the feasibility loop: the blueprint is
	// adjusted at most this many times before generation proceeds with
	// whatever it has.
	maxRefinements = 2
	// maxContentRetries is the per-chapter retry budget on top of the
	// first attempt.
	maxContentRetries = 2
)

// Generator is the model call surface the pipeline needs.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Event reports generation progress. Percent never decreases over the
// lifetime of a Run.
type Event struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// ProgressFunc receives progress events. May be nil.
type ProgressFunc func(Event)

// Pipeline orchestrates the generation stages.
type Pipeline struct {
	gen   Generator
	retry llm.RetryPolicy
	pacer *llm.Pacer
	now   func() time.Time
}

// New creates a pipeline. pacer may be nil to disable inter-call pacing.
func New(gen Generator, retry llm.RetryPolicy, pacer *llm.Pacer) *Pipeline {
	if pacer == nil {
		pacer = &llm.Pacer{}
	}
	return &Pipeline{gen: gen, retry: retry, pacer: pacer, now: time.Now}
}

func (p *Pipeline) pace(ctx context.Context) error {
	return p.pacer.Wait(ctx)
}

// Result is the outcome of a full pipeline run.
type Result struct {
	Course model.CourseData
	// Degraded lists titles of chapters that fell back to placeholders.
	Degraded []string
	// Blueprint is the final, possibly refined, blueprint used.
	Blueprint model.CourseBlueprint
}

// Run executes the full generation pipeline. Gate failures degrade
// rather than abort: a failed feasibility or quality check logs and
// proceeds, a failed chapter becomes a placeholder. Only a failed
// outline, or context cancellation, aborts the run.
func (p *Pipeline) Run(ctx context.Context, choices model.UserChoices, bp model.CourseBlueprint, progress ProgressFunc) (Result, error) {
	if choices.FinalTitle == "" {
		return Result{}, fmt.Errorf("no confirmed course title")
	}

	emit := newEmitter(progress)
	emit("feasibility", "Checking feasibility of the final draft...", 5)

	bp = p.refineBlueprint(ctx, choices, bp, emit)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	spec := DeriveContentSpec(choices, bp)
	emit("quality", "Performing quality check for course structure...", 25)

	qualitySuggestions := ""
	if err := p.pace(ctx); err != nil {
		return Result{}, err
	}
	verdict, err := p.CheckQuality(ctx, bp, choices, spec.Chapters)
	switch {
	case err != nil:
		slog.Warn("quality check failed, proceeding with standard generation", "err", err)
		emit("quality", fmt.Sprintf("Warning: Quality check failed (%v). Proceeding with standard generation...", err), 30)
	case verdict.QualityCheck == model.NeedsRevision && verdict.Suggestions != "":
		qualitySuggestions = verdict.Suggestions
		emit("quality", fmt.Sprintf("Quality check: %q. Suggestions will be considered.", verdict.Suggestions), 30)
	default:
		emit("quality", "Quality check passed. Creating chapter titles...", 30)
	}

	emit("outline", fmt.Sprintf("Creating curriculum with %d chapters...", spec.Chapters), 35)
	if err := p.pace(ctx); err != nil {
		return Result{}, err
	}
	titles, err := p.GenerateChapterTitles(ctx, choices, spec, qualitySuggestions)
	if err != nil {
		return Result{}, fmt.Errorf("chapter outline: %w", err)
	}

	result := Result{Blueprint: bp}
	chapters := make([]model.CourseChapter, 0, len(titles))
	totalXP, totalMinutes := 0, 0

	base := 40
	perChapter := float64(90-base) / float64(len(titles))
	for i, title := range titles {
		pct := base + int(math.Round(float64(i)*perChapter))
		emit("content", fmt.Sprintf("Generating Chapter %d/%d: %q", i+1, len(titles), title), pct)

		if err := p.pace(ctx); err != nil {
			return Result{}, err
		}
		ch, err := p.GenerateChapter(ctx, choices, title, spec, qualitySuggestions)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			slog.Warn("chapter generation failed, inserting placeholder", "chapter", title, "err", err)
			ch = PlaceholderChapter(title, err)
			result.Degraded = append(result.Degraded, title)
		}
		// A fresh course starts with no progress, whatever the model
		// put in the lesson.
		for j := range ch.Lessons {
			ch.Lessons[j].IsCompleted = false
			totalXP += ch.Lessons[j].XPValue
			totalMinutes += ch.Lessons[j].EstimatedDurationMinutes
		}
		chapters = append(chapters, ch)
	}

	result.Course = model.CourseData{
		ID:                 CourseID(choices.FinalTitle, p.now()),
		Title:              choices.FinalTitle,
		Chapters:           chapters,
		TotalCourseXP:      totalXP,
		TotalCourseMinutes: totalMinutes,
	}
	emit("done", "Course successfully created!", 100)
	return result, nil
}

// refineBlueprint runs the feasibility loop. Errors never abort: the
// current blueprint survives any failed check or refinement.
func (p *Pipeline) refineBlueprint(ctx context.Context, choices model.UserChoices, bp model.CourseBlueprint, emit func(string, string, int)) model.CourseBlueprint {
	for attempt := 0; attempt < maxRefinements; attempt++ {
		if err := p.pace(ctx); err != nil {
			return bp
		}
		verdict, err := p.CheckFeasibility(ctx, bp, choices)
		if err != nil {
			slog.Warn("feasibility check failed, continuing with current draft", "attempt", attempt+1, "err", err)
			emit("feasibility", fmt.Sprintf("Error during feasibility check (Attempt %d): %v. Continuing with current draft.", attempt+1, err), 10)
			return bp
		}
		emit("feasibility", fmt.Sprintf("Feasibility check (Attempt %d)...", attempt+1), 10)

		if verdict.Feasibility == model.Feasible {
			emit("feasibility", "Course draft is feasible.", 15)
			return bp
		}
		if verdict.Suggestion == "" {
			emit("feasibility", "Feasibility check yielded no specific suggestions. Proceeding.", 15)
			return bp
		}

		emit("feasibility", fmt.Sprintf("Feedback: %q. Optimizing course structure (Attempt %d)...", verdict.Suggestion, attempt+1), 15)
		refinement := fmt.Sprintf("The feasibility feedback was: %q.", verdict.Suggestion)
		if verdict.RefinedChapterCount > 0 {
			refinement += fmt.Sprintf(" Adjust the number of learning objectives/chapters (Target: %d).", verdict.RefinedChapterCount)
		}

		if err := p.pace(ctx); err != nil {
			return bp
		}
		refined, err := p.GenerateBlueprint(ctx, choices, refinement)
		if err != nil {
			slog.Warn("blueprint refinement failed, continuing with previous draft", "attempt", attempt+1, "err", err)
			emit("feasibility", fmt.Sprintf("Error adjusting course structure (Attempt %d): %v. Continuing with previous draft.", attempt+1, err), 20)
			return bp
		}
		bp = refined
		emit("feasibility", fmt.Sprintf("Course structure adjusted (Attempt %d).", attempt+1), 20)
	}
	emit("feasibility", "Maximum adjustment attempts reached. Continuing with current draft.", 20)
	return bp
}

// CourseID derives a storage ID from the course title and creation time.
func CourseID(title string, at time.Time) string {
	name := strings.Join(strings.Fields(title), "_")
	if name == "" {
		name = "course"
	}
	return fmt.Sprintf("%s_%d", name, at.UnixMilli())
}

// newEmitter wraps progress with monotonic percent clamping.
func newEmitter(progress ProgressFunc) func(stage, msg string, pct int) {
	high := 0
	return func(stage, msg string, pct int) {
		if pct < high {
			pct = high
		}
		high = pct
		if progress != nil {
			progress(Event{Stage: stage, Message: msg, Percent: pct})
		}
	}
}
