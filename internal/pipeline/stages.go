package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pathly-ai/pathly/internal/llm/prompts"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/sanitize"
)

// GenerateBlueprint produces a course blueprint from the user's
// preferences. A non-empty refinement carries feasibility feedback into
// the prompt.
func (p *Pipeline) GenerateBlueprint(ctx context.Context, choices model.UserChoices, refinement string) (model.CourseBlueprint, error) {
	prompt := prompts.Blueprint(choices, refinement)
	raw, err := p.generate(ctx, "blueprint", prompts.SystemCourseDesign, prompt, prompts.TemperatureBlueprint)
	if err != nil {
		return model.CourseBlueprint{}, err
	}
	var bp model.CourseBlueprint
	if err := sanitize.Decode(raw, &bp); err != nil {
		return model.CourseBlueprint{}, fmt.Errorf("blueprint: %w", err)
	}
	if strings.TrimSpace(bp.Title) == "" || len(bp.Objectives) == 0 {
		return model.CourseBlueprint{}, fmt.Errorf("blueprint missing title or objectives")
	}
	return bp, nil
}

// CheckFeasibility assesses whether the blueprint fits the user's time
// budget.
func (p *Pipeline) CheckFeasibility(ctx context.Context, bp model.CourseBlueprint, choices model.UserChoices) (model.FeasibilityVerdict, error) {
	prompt := prompts.Feasibility(bp, choices)
	raw, err := p.generate(ctx, "feasibility check", prompts.SystemFeasibilityCheck, prompt, prompts.TemperatureFeasibility)
	if err != nil {
		return model.FeasibilityVerdict{}, err
	}
	var verdict model.FeasibilityVerdict
	if err := sanitize.Decode(raw, &verdict); err != nil {
		return model.FeasibilityVerdict{}, fmt.Errorf("feasibility check: %w", err)
	}
	switch verdict.Feasibility {
	case model.Feasible, model.TooAmbitious, model.TooLittleContent:
	default:
		return model.FeasibilityVerdict{}, fmt.Errorf("feasibility check returned unknown verdict %q", verdict.Feasibility)
	}
	return verdict, nil
}

// CheckQuality reviews the final blueprint before content generation.
func (p *Pipeline) CheckQuality(ctx context.Context, bp model.CourseBlueprint, choices model.UserChoices, plannedChapters int) (model.QualityVerdict, error) {
	prompt := prompts.Quality(bp, choices, plannedChapters)
	raw, err := p.generate(ctx, "quality check", prompts.SystemQualityCheck, prompt, prompts.TemperatureQuality)
	if err != nil {
		return model.QualityVerdict{}, err
	}
	var verdict model.QualityVerdict
	if err := sanitize.Decode(raw, &verdict); err != nil {
		return model.QualityVerdict{}, fmt.Errorf("quality check: %w", err)
	}
	return verdict, nil
}

// GenerateChapterTitles produces the ordered chapter outline.
func (p *Pipeline) GenerateChapterTitles(ctx context.Context, choices model.UserChoices, spec ContentSpec, qualitySuggestions string) ([]string, error) {
	prompt := prompts.ChapterTitles(choices.FinalTitle, levelOrDefault(choices), styleOrDefault(choices),
		choices.TestTaken, spec.Chapters, qualitySuggestions)
	raw, err := p.generate(ctx, "chapter titles", prompts.SystemCourseDesign, prompt, prompts.TemperatureTitles)
	if err != nil {
		return nil, err
	}

	text, err := sanitize.JSON(raw)
	if err != nil {
		return nil, fmt.Errorf("chapter titles: %w", err)
	}
	titles, err := decodeTitles(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no chapter titles generated")
	}
	return out, nil
}

// decodeTitles accepts the outline in the shapes models actually emit:
// a plain string array, an object wrapping one, or a JSON string that
// itself encodes the array.
func decodeTitles(text string) ([]string, error) {
	var titles []string
	if err := json.Unmarshal([]byte(text), &titles); err == nil {
		return titles, nil
	}

	var wrapped map[string][]string
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped) == 1 {
		for _, v := range wrapped {
			return v, nil
		}
	}

	var encoded string
	if err := json.Unmarshal([]byte(text), &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &titles); err == nil {
			return titles, nil
		}
	}

	return nil, fmt.Errorf("chapter titles are not a string array: %s", text)
}

// GenerateChapter produces one chapter's full content. The outer retry
// loop re-prompts with the previous failure so the model fixes its own
// formatting; after maxContentRetries the caller falls back to a
// placeholder chapter.
func (p *Pipeline) GenerateChapter(ctx context.Context, choices model.UserChoices, chapterTitle string, spec ContentSpec, qualitySuggestions string) (model.CourseChapter, error) {
	var lastErr error
	for attempt := 0; attempt <= maxContentRetries; attempt++ {
		if attempt > 0 {
			if err := p.pace(ctx); err != nil {
				return model.CourseChapter{}, err
			}
		}
		prevErr := ""
		if lastErr != nil {
			prevErr = lastErr.Error()
		}
		prompt := prompts.ChapterContent(choices.FinalTitle, chapterTitle, levelOrDefault(choices), styleOrDefault(choices),
			choices.TestTaken, spec.LessonsPerChapter, spec.Detail, qualitySuggestions, attempt, prevErr)

		raw, err := p.generate(ctx, "chapter content", prompts.SystemContentGenerator, prompt, prompts.TemperatureContent)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return model.CourseChapter{}, err
			}
			continue
		}
		ch, err := sanitize.Chapter(raw)
		if err != nil {
			lastErr = err
			continue
		}
		ch.Title = chapterTitle
		return ch, nil
	}
	return model.CourseChapter{}, fmt.Errorf("chapter %q: %w", chapterTitle, lastErr)
}

// PlaceholderChapter is the degraded stand-in for a chapter whose content
// could not be generated. The course still assembles; the chapter names
// the failure so the user can regenerate later.
func PlaceholderChapter(title string, cause error) model.CourseChapter {
	detail := "Unknown"
	if cause != nil {
		detail = cause.Error()
	}
	return model.CourseChapter{
		Title: title,
		Introduction: fmt.Sprintf("<p>Content for this chapter (%q) could not be generated. Error: %s. Please try again later or adjust the course settings.</p>",
			title, detail),
		Lessons: []model.CourseLesson{{
			Title:                "Error",
			Content:              "<p>Lesson content could not be loaded.</p>",
			SuggestedSearchTerms: []string{},
		}},
		Exercise: &model.CourseExercise{Title: "No exercise available", Task: "-", Solution: "-"},
	}
}

// generate runs one model call through the retry policy.
func (p *Pipeline) generate(ctx context.Context, op, system, prompt string, temperature float32) (string, error) {
	return p.retry.Do(ctx, op, func(ctx context.Context) (string, error) {
		return p.gen.GenerateJSON(ctx, system, prompt, temperature)
	})
}

func levelOrDefault(c model.UserChoices) string {
	if c.Level == "" {
		return "Beginner"
	}
	return c.Level
}

func styleOrDefault(c model.UserChoices) string {
	if c.Style == "" {
		return "Learning by Doing"
	}
	return c.Style
}
