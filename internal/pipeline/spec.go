package pipeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pathly-ai/pathly/internal/model"
)

// HourLimit is the total course hour budget enforced during the beta.
const HourLimit = 25

const daysPerMonth = 30.44

// ContentSpec is the derived shape of the course to generate.
type ContentSpec struct {
	Chapters          int
	LessonsPerChapter int
	Project           string
	Detail            string
}

type durationSpec struct {
	baseChapters      int
	lessonsPerChapter int
	project           string
}

var durationSpecs = map[string]durationSpec{
	"a short weekend sprint":       {3, 2, "a small final exercise"},
	"a 2-week course":              {5, 3, "several practical exercises and a small final project"},
	"a comprehensive 1-month course": {7, 4, "multiple projects and a solid final project"},
}

var commitmentMultipliers = map[string]float64{
	"1-3 hours per week": 0.8,
	"4-6 hours per week": 1.0,
	"7+ hours per week":  1.2,
}

// DeriveContentSpec maps the user's duration and commitment onto chapter
// and lesson counts. When the blueprint carries objectives, their count
// wins over the duration heuristic so chapters line up with objectives.
func DeriveContentSpec(choices model.UserChoices, bp model.CourseBlueprint) ContentSpec {
	spec, ok := durationSpecs[choices.Duration]
	if !ok {
		spec = durationSpecs["a 2-week course"]
	}
	multiplier, ok := commitmentMultipliers[choices.Commitment]
	if !ok {
		multiplier = 1.0
	}

	chapters := int(math.Round(float64(spec.baseChapters) * multiplier))
	if len(bp.Objectives) > 0 {
		chapters = len(bp.Objectives)
	}
	chapters = max(1, chapters)

	detail := "moderately detailed, focused on the essentials"
	if multiplier > 1.1 {
		detail = "very thorough, with many examples and theoretical depth"
	} else if multiplier > 0.9 {
		detail = "detailed with background information"
	}

	return ContentSpec{
		Chapters:          chapters,
		LessonsPerChapter: max(1, int(math.Round(float64(spec.lessonsPerChapter)*multiplier))),
		Project:           spec.project,
		Detail:            detail,
	}
}

var (
	numberRe = regexp.MustCompile(`(\d+)`)
	rangeRe  = regexp.MustCompile(`(\d+)\s*-\s*(\d+)\s*(week|weeks|month|months)`)
	// Tolerates "2-week" and "1-month" compound forms.
	singleRe = regexp.MustCompile(`(\d+)[\s-]*(week|weeks|month|months|day|days)`)
)

// ParseCommitmentHours converts a free-form weekly commitment phrase into
// average weekly hours. Unrecognized phrases fall back to a middling
// default; an empty phrase defaults slightly lower.
func ParseCommitmentHours(commitment string) float64 {
	if commitment == "" {
		return 3
	}
	lower := strings.ToLower(commitment)

	switch {
	case strings.Contains(lower, "1-3 hours"):
		return 2
	case strings.Contains(lower, "4-6 hours"):
		return 5
	case strings.Contains(lower, "7+ hours"), strings.Contains(lower, "7 hours"), strings.Contains(lower, "intensively"):
		return 8
	case strings.Contains(lower, "casually"):
		return 2
	case strings.Contains(lower, "regularly"):
		return 5
	}

	if m := numberRe.FindStringSubmatch(lower); m != nil {
		if hours, err := strconv.Atoi(m[1]); err == nil {
			return math.Min(float64(hours), 10)
		}
	}
	return 4
}

// ParseDurationDays converts a free-form course duration phrase into
// total days. Ranges average their endpoints; months count as 30.44
// days. Unrecognized phrases default to three weeks.
func ParseDurationDays(duration string) float64 {
	if duration == "" {
		return 14
	}
	lower := strings.ToLower(duration)

	if m := rangeRe.FindStringSubmatch(lower); m != nil {
		v1, _ := strconv.Atoi(m[1])
		v2, _ := strconv.Atoi(m[2])
		avg := float64(v1+v2) / 2
		if strings.HasPrefix(m[3], "week") {
			return math.Round(avg * 7)
		}
		return math.Round(avg * daysPerMonth)
	}

	if m := singleRe.FindStringSubmatch(lower); m != nil {
		v, _ := strconv.Atoi(m[1])
		switch {
		case strings.HasPrefix(m[2], "week"):
			return float64(v * 7)
		case strings.HasPrefix(m[2], "month"):
			return float64(v) * daysPerMonth
		default:
			return float64(v)
		}
	}

	switch {
	case strings.Contains(lower, "sprint") && (strings.Contains(lower, "1 week") || strings.Contains(lower, "one week")):
		return 7
	case strings.Contains(lower, "weekend sprint"):
		return 3
	case strings.Contains(lower, "standard course") && strings.Contains(lower, "2-4 weeks"):
		return 21
	case strings.Contains(lower, "deep-dive") && strings.Contains(lower, "1-2 months"):
		return 45
	case strings.Contains(lower, "one week"), strings.Contains(lower, "1 week"):
		return 7
	case strings.Contains(lower, "two weeks"), strings.Contains(lower, "2 weeks"):
		return 14
	case strings.Contains(lower, "three weeks"), strings.Contains(lower, "3 weeks"):
		return 21
	case strings.Contains(lower, "four weeks"), strings.Contains(lower, "4 weeks"):
		return 28
	case strings.Contains(lower, "one month"), strings.Contains(lower, "1 month"):
		return 30
	case strings.Contains(lower, "two months"), strings.Contains(lower, "2 months"):
		return 60
	}
	return 21
}

// EstimatedTotalHours projects the total course workload from the weekly
// commitment spread over the course duration.
func EstimatedTotalHours(commitment, duration string) float64 {
	return ParseCommitmentHours(commitment) / 7 * ParseDurationDays(duration)
}

// ExceedsHourLimit reports whether the projected workload is over the
// beta budget, along with the estimate itself.
func ExceedsHourLimit(commitment, duration string) (float64, bool) {
	hours := EstimatedTotalHours(commitment, duration)
	return hours, hours > HourLimit
}
