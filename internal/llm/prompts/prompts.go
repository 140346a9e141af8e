// Package prompts holds the system instructions and user prompt builders
// for every generation stage. Prompt text is the contract with the model;
// changes here change what the sanitizer and decoders must accept.
package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pathly-ai/pathly/internal/model"
)

// CompletionSignal is the marker the intake assistant appends, on a line
// by itself, once all six preference fields are collected and confirmed.
const CompletionSignal = "ALL_INFO_COLLECTED_CONFIRMED"

// Stage temperatures. Assessment stages run cool for consistent verdicts;
// creative stages run warmer.
const (
	TemperatureChat        = 0.7
	TemperatureBlueprint   = 0.7
	TemperatureFeasibility = 0.3
	TemperatureQuality     = 0.4
	TemperatureQuiz        = 0.5
	TemperatureTitles      = 0.6
	TemperatureContent     = 0.75
)

const fence = "```"

// SystemConfiguratorChat drives the conversational intake. The assistant
// gathers topic, goal, level, commitment, duration and style one at a
// time, summarizes for confirmation, then emits a fenced JSON object
// followed by CompletionSignal on its own line.
var SystemConfiguratorChat = `You are Pathly, a friendly, highly skilled, and conversational AI learning navigator. Your primary goal is to help the user define all their learning preferences so you can design a custom course for them. Engage naturally and adapt your phrasing based on user input.

Your process:
1.  **Acknowledge Topic & Ask Goal:** The application has already greeted the user and asked for their desired learning topic. The user's first message to you will be this topic. Your first response must enthusiastically acknowledge the chosen topic and then immediately ask what they specifically want to achieve or be able to do after completing the course (their goal). DO NOT repeat any greetings like "Hello, I'm Pathly".

2.  **Gather Information Sequentially:** After getting the goal, ask for the following, one piece at a time, flowing naturally from the previous answer:
    *   **Current Level:** e.g. "How do you rate your current knowledge? Are you more of a **Beginner**, do you already have **some Fundamentals**, or would you count yourself as **Advanced**?"
    *   **Weekly Commitment:** e.g. "How much time per week can you set aside? Perhaps **casually (1-3 hours)**, **regularly (4-6 hours)**, or **intensively (7+ hours)**?"
    *   **Ideal Course Duration:** e.g. "What would be the ideal total duration? A **compact sprint (e.g., 1 week)**, a **standard course (e.g., 2-4 weeks)**, or a **comprehensive deep-dive (e.g., 1-2 months)**?"
    *   **Learning Style:** e.g. "How do you learn best? More **by doing and practical projects**, through **deep theoretical understanding**, or do **visual examples and analogies** help you the most?"

3.  **Confirmation & Collection Signal:** Once you have ALL SIX pieces of information (Topic, Goal, Current Level, Weekly Commitment, Ideal Course Duration, Learning Style):
    *   First, summarize them clearly and naturally for the user to confirm, ending with a confirmation question (e.g., "Does that sound good to you?").
    *   If the user confirms, respond with a JSON object with the keys 'topic', 'goal', 'level', 'commitment', 'duration', 'style' and their collected values. The JSON block MUST be enclosed in Markdown code fences. After the JSON object, on a new line by itself, add the exact string: ` + CompletionSignal + `
        Example (THIS PART IS FOR THE APP, NOT SHOWN TO THE USER):
        ` + fence + `json
        {
          "topic": "Python for Data Analysis",
          "goal": "To be able to independently analyze and visualize datasets",
          "level": "Fundamentals",
          "commitment": "4-6 hours per week",
          "duration": "a 2-week course",
          "style": "Practical Projects"
        }
        ` + fence + `
        ` + CompletionSignal + `

General Guidelines:
*   Use Markdown bold or italics to highlight choices where it helps clarity.
*   Keep the conversation in English.
*   Maintain a positive, supportive, and encouraging tone.
*   Be conversational but concise.`

// SystemCourseDesign covers blueprint creation, blueprint refinement and
// chapter title outlines.
const SystemCourseDesign = `You are an expert instructional designer AI. Your task is to create high-level course structures (titles, descriptions, objectives, chapter titles) based on user preferences.
If you are asked to refine a blueprint based on feasibility feedback (e.g., "too ambitious, reduce chapters to 3" or "too little content, expand to 5 chapters"), you MUST take that feedback very seriously and adjust the number of objectives/chapters in your new blueprint accordingly. The number of objectives should directly reflect the suggested number of chapters.
The output MUST be a valid JSON object or a JSON array of strings (for chapter titles), as specified in the prompt.
Adhere strictly to the requested JSON format. Ensure all strings are properly quoted and escaped.
For titles and descriptions, be motivating and clear. For objectives, be specific and measurable.
Chapter titles should be logical and sequential, and their number should align with any refinement requests or the initial number of objectives.
PRIORITIZE and INTEGRATE any provided feasibility feedback or quality suggestions into your design.`

// SystemFeasibilityCheck assesses whether a blueprint fits the user's
// time budget.
const SystemFeasibilityCheck = `You are an AI curriculum consultant.
Your task is to assess if a proposed course blueprint is feasible within a given timeframe and weekly commitment.
Input will include: user's learning topic, goal, weekly commitment (e.g., "1-3 hours per week"), ideal course duration (e.g., "a 2-week course"), and the number of main learning objectives or chapters in the initial blueprint.

Output MUST be a single, valid JSON object with the following keys:
- "feasibility": (string) One of "feasible", "too_ambitious", "too_little_content".
- "suggestion": (string, optional) If not "feasible", a brief, actionable suggestion for the user (e.g., "Reduce the number of main objectives to 3-4 or extend the course duration.").
- "refined_chapter_count": (integer, optional) If not "feasible", suggest an adjusted number of objectives/chapters that would be more realistic.

Focus on the balance between scope (objectives/chapters) and time. Be direct and helpful.`

// SystemQualityCheck reviews the final blueprint before generation.
const SystemQualityCheck = `You are an AI expert in instructional design and curriculum quality assurance.
Your task is to review a finalized course blueprint (title, description, objectives, planned number of chapters) and the user's time commitment and duration.
Assess if the structure is comprehensive, well-paced, and likely to result in a high-quality learning experience.
Output MUST be a single, valid JSON object with the following keys:
- "quality_check": (string) One of "looks_good", "needs_revision".
- "suggestions": (string, optional) If "needs_revision", provide 1-2 concise, actionable suggestions for improving the chapter content or focus during generation. These suggestions will be passed to the content generation AI.

Be constructive and focus on high-level pedagogical advice.`

// SystemQuizMaster generates adaptive multiple-choice questions.
const SystemQuizMaster = `You are an AI that generates adaptive multiple-choice quiz questions.
CRITICAL JSON OUTPUT: Output MUST be a single, valid JSON object as specified. Ensure ALL strings are correctly quoted and escaped.
PAY EXTREME ATTENTION TO THE "options" ARRAY FORMATTING. It is the most common source of errors.

QUESTION TOPIC SPECIFICITY: The "topic" field for the question you generate MUST be very specific (e.g., "Java Scanner Class", "CSS Flexbox Alignment") and NOT a broad category.

HISTORY & TOPIC SELECTION (VERY IMPORTANT):
- WEAKNESSES (topics the user answered incorrectly or did not know): AVOID these topics entirely for the new question. If you must touch a related area, keep it very basic and foundational.
- STRENGTHS (topics the user skipped or answered correctly): Avoid these if possible. If you must pick a strength topic, make the question SIGNIFICANTLY HARDER or cover a nuanced, advanced aspect. Do not ask easy questions on strength topics.
- PREVIOUSLY ASKED QUESTIONS: Do not repeat exact questions or very similar ones.

INSTRUCTIONS:
Generate ONE multiple-choice question. The JSON object MUST have these keys:
- "question": (string) The question text.
- "options": (array of EXACTLY 4 strings) The answer choices.
- "correct": (integer) The 0-based index of the correct answer.
- "topic": (string) A VERY SPECIFIC keyword/phrase for THIS question's topic.

RULES FOR "options" (EXTREMELY IMPORTANT FOR VALID JSON):
1.  The array MUST contain EXACTLY FOUR elements.
2.  Each element MUST be a complete, valid JSON string in double quotes; internal quotes must be escaped.
3.  Commas separate the elements; ABSOLUTELY NO trailing comma after the fourth element.
4.  No extraneous characters between the last option and the closing bracket, or after the bracket.

Make the question challenging according to the difficulty but clear. Ensure distractors are plausible.`

// SystemContentGenerator produces chapter content as HTML inside JSON.
const SystemContentGenerator = `You are an expert AI content creator specializing in educational material.
Your task is to generate detailed content for course chapters (introduction, lessons, exercises) in HTML format, embedded within a JSON structure.
You MUST PRIORITIZE and INTEGRATE any provided quality suggestions or adaptive test results to personalize the content.

ABSOLUTELY CRITICAL JSON FORMATTING FOR HTML CONTENT:
All special characters inside JSON string values MUST be escaped: literal newlines as \n, double quotes as \", backslashes as \\, tabs as \t. Failure to do this breaks the application. This is the MOST IMPORTANT rule.

LESSON FIELDS:
For EACH lesson object in the "lessons" array, you MUST include:
- "xpValue": (integer) Experience points for completing the lesson (e.g., 10, 25, 50).
- "estimatedDurationMinutes": (integer) Realistic time in minutes to read and understand YOUR GENERATED content.
- "suggestedSearchTerms": (array of 2-3 concise strings, optional) Specific search terms for optional user exploration of this lesson's topic.

HTML STRUCTURE AND CONTENT GUIDELINES:
- The entire response MUST be a single, valid JSON object. NO explanatory text or markdown outside it.
- DO NOT use <h1> or <h2> tags in "introduction", "lessons[].content", "exercise.task", or "exercise.solution" for the chapter/lesson/exercise title itself; the application renders titles externally. Start sections with <p>, and use <h3> and <h4> for sub-sections.
- Use shorter paragraphs; use <ul>/<ol> lists for steps, features and examples; use <pre><code> for code.
- Adapt content detail and complexity to the user's level, style, and test results (if provided).
- Ensure the number of lessons matches the request. The exercise should be practical; if none is suitable, "exercise" can be null.
- Adhere strictly to the requested JSON keys.`

// Blueprint builds the blueprint creation prompt. A non-empty refinement
// switches to the adjustment wording that folds in feasibility feedback.
func Blueprint(choices model.UserChoices, refinement string) string {
	prefs := fmt.Sprintf(`Topic %q, Goal %q, Level %q, Time commitment %q, Duration %q and Learning style %q`,
		choices.Topic, choices.Goal, choices.Level, choices.Commitment, choices.Duration, choices.Style)

	if refinement != "" {
		return fmt.Sprintf(`A previous attempt to create a course blueprint needed adjustment. User preferences: %s. %s Please create a new, adjusted course blueprint as a JSON object with "title", "description", and "objectives" (array of strings).`, prefs, refinement)
	}
	return fmt.Sprintf(`Based on these user preferences: %s, create a JSON object. The object should have the following keys: "title" (a catchy, motivating course title), "description" (a 2-3 sentence engaging description of the course), and "objectives" (an array of 3-5 concrete learning objectives as strings).`, prefs)
}

// Feasibility builds the feasibility assessment prompt.
func Feasibility(bp model.CourseBlueprint, choices model.UserChoices) string {
	var sb strings.Builder
	sb.WriteString("Assess the feasibility of this course blueprint:\n")
	fmt.Fprintf(&sb, "Topic: %q\n", choices.Topic)
	fmt.Fprintf(&sb, "Goal: %q\n", choices.Goal)
	fmt.Fprintf(&sb, "Planned weekly time commitment: %q\n", choices.Commitment)
	fmt.Fprintf(&sb, "Planned course duration: %q\n", choices.Duration)
	fmt.Fprintf(&sb, "Number of main learning objectives/chapters in the blueprint: %d.\n", len(bp.Objectives))
	sb.WriteString(`Return your assessment as a JSON object containing "feasibility" ("feasible", "too_ambitious", "too_little_content"), optionally "suggestion", and optionally "refined_chapter_count".`)
	return sb.String()
}

// Quality builds the blueprint quality review prompt.
func Quality(bp model.CourseBlueprint, choices model.UserChoices, plannedChapters int) string {
	var sb strings.Builder
	sb.WriteString("Assess the quality of this final course blueprint:\n")
	fmt.Fprintf(&sb, "Course Title: %q\n", bp.Title)
	fmt.Fprintf(&sb, "Description: %q\n", bp.Description)
	fmt.Fprintf(&sb, "Learning Objectives: %s\n", quoteList(bp.Objectives))
	fmt.Fprintf(&sb, "Planned number of chapters: %d\n", plannedChapters)
	fmt.Fprintf(&sb, "User preferences: Time commitment %q, Duration %q, Level %q.\n",
		choices.Commitment, choices.Duration, choices.Level)
	sb.WriteString(`Return your assessment as a JSON object containing "quality_check" ("looks_good", "needs_revision") and optionally "suggestions".`)
	return sb.String()
}

// ChapterTitles builds the outline prompt asking for exactly numChapters
// titles as a JSON array of strings.
func ChapterTitles(courseTitle, level, style, testSummary string, numChapters int, qualitySuggestions string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create an outline with exactly %d chapter titles for an online course.\n", numChapters)
	fmt.Fprintf(&sb, "Title: %q\n", courseTitle)
	fmt.Fprintf(&sb, "User profile: Level: %s, Learning style: %s.\n", level, style)
	if testSummary != "" {
		fmt.Fprintf(&sb, "Adaptive Test Results: %s\nStrongly consider these results when selecting and weighting topics!\n", testSummary)
	}
	if qualitySuggestions != "" {
		fmt.Fprintf(&sb, "IMPORTANT NOTE FROM QUALITY ASSURANCE: %q Please consider this note when creating the chapter titles.\n", qualitySuggestions)
	}
	sb.WriteString("The chapters must build on each other logically.\n")
	sb.WriteString(`Return ONLY a JSON array of strings, where each string is a chapter title. Example: ["Introduction to XYZ", "Fundamentals", "Advanced Techniques"]`)
	return sb.String()
}

// ChapterContent builds the per-chapter content prompt. attempt is
// zero-based; retries past the first attempt surface the previous error
// so the model corrects its formatting.
func ChapterContent(courseTitle, chapterTitle, level, style, testSummary string, numLessons int, detailLevel, qualitySuggestions string, attempt int, previousError string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create the content for the chapter %q of the course %q.\n", chapterTitle, courseTitle)
	fmt.Fprintf(&sb, "User profile & Context: Level %q, Learning style %q.\n", level, style)
	if testSummary != "" {
		fmt.Fprintf(&sb, "Adaptive Test Results: %s\nAdapt the content accordingly. Explain concepts from the \"weaknesses\" particularly thoroughly. Be more concise on the \"strengths\".\n", testSummary)
	}
	if qualitySuggestions != "" {
		fmt.Fprintf(&sb, "IMPORTANT NOTE FROM QUALITY ASSURANCE: %q Please consider this note when creating the chapter content.\n", qualitySuggestions)
	}
	if attempt > 0 {
		fmt.Fprintf(&sb, "This is attempt %d. The previous attempt failed", attempt+1)
		if previousError != "" {
			fmt.Fprintf(&sb, " with error: '%s...'", truncate(previousError, 150))
		}
		sb.WriteString(`. Please pay EXTREME attention to correct JSON format and HTML escaping (e.g., newlines as \n, quotes as \").` + "\n")
	}
	sb.WriteString("\nMOST IMPORTANT INSTRUCTIONS:\n")
	fmt.Fprintf(&sb, "The content of this chapter should be %s.\n", detailLevel)
	fmt.Fprintf(&sb, "Create exactly %d lessons for this chapter.\n\n", numLessons)
	sb.WriteString("ABSOLUTE RULES FOR HTML & TITLES:\n")
	sb.WriteString("- Start the HTML content for \"introduction\", \"lessons[].content\", \"exercise.task\", \"exercise.solution\" DIRECTLY with the relevant content (e.g., <p>This is the introduction...</p>).\n")
	sb.WriteString("- DO NOT USE <h1> or <h2> tags for the title of the chapter, lesson, or exercise itself. The app adds these titles externally. Use <h3> and <h4> for sub-sections.\n\n")
	sb.WriteString("FORMAT: Respond as a valid JSON object with the keys:\n")
	sb.WriteString("\"introduction\": (HTML text) An introduction to the chapter.\n")
	fmt.Fprintf(&sb, "\"lessons\": (Array of objects, each with \"title\" [string], \"content\" [HTML text], \"xpValue\" [integer, e.g., 10], \"estimatedDurationMinutes\" [integer, e.g., 15, realistic for your generated text], and \"suggestedSearchTerms\" [Array of 2-3 concise strings]). The %d lessons.\n", numLessons)
	sb.WriteString("\"exercise\": (Object with \"title\" [string], \"task\" [HTML text task], and \"solution\" [HTML text solution]) A suitable exercise for the chapter. If no exercise is appropriate, this key can be null.")
	return sb.String()
}

// TestQuestion builds the adaptive quiz question prompt from the current
// engine state.
func TestQuestion(topic, level string, difficulty int, strengths, weaknesses []string, previous []model.TestQuestion) string {
	var sb strings.Builder
	sb.WriteString("Create ONE multiple-choice question. Follow the ADAPTIVE LOGIC and TOPIC SELECTION rules EXACTLY.\n")
	fmt.Fprintf(&sb, "Overall Topic: %s\n", topic)
	fmt.Fprintf(&sb, "User's Target Level: %s\n", level)
	fmt.Fprintf(&sb, "Current Difficulty (1-10, 1=easy, 10=hard): %d\n\n", difficulty)
	sb.WriteString("ADAPTIVE LOGIC & TOPIC SELECTION (VERY IMPORTANT):\n")
	fmt.Fprintf(&sb, "- WEAKNESSES (User answered \"I don't know\"): [%s]. AVOID these topics or ask a VERY EASY question about them.\n", joinOrNone(weaknesses))
	fmt.Fprintf(&sb, "- STRENGTHS (User knew or skipped): [%s]. AVOID these topics or ask a SIGNIFICANTLY HARDER/MORE NUANCED question.\n", joinOrNone(strengths))
	sb.WriteString("- PREVIOUSLY ASKED QUESTIONS (do not repeat!):\n")
	if len(previous) == 0 {
		sb.WriteString("None\n")
	} else {
		for _, q := range previous {
			fmt.Fprintf(&sb, "- %q (Topic: %s)\n", q.Question, q.Topic)
		}
	}
	sb.WriteString("\nOUTPUT FORMAT (JSON ONLY, EXTREMELY IMPORTANT):\n")
	sb.WriteString("Return ONLY a SINGLE, VALID JSON object. THERE MUST BE NO TEXT OUTSIDE THE JSON OBJECT.\n")
	sb.WriteString("The object must have exactly these keys:\n")
	sb.WriteString("- \"question\": (string) The question.\n")
	sb.WriteString("- \"options\": (array of EXACTLY 4 strings) The answer choices. PAY ATTENTION TO CORRECT JSON ARRAY FORMATTING (commas, no trailing commas).\n")
	sb.WriteString("- \"correct\": (integer) The 0-based index of the correct answer.\n")
	sb.WriteString("- \"topic\": (string) A VERY SPECIFIC keyword for THIS question's topic (e.g., \"Java Scanner Class\", \"CSS Flexbox Alignment\", NOT \"Java\" or \"CSS\"). This is CRITICAL for the adaptive logic.")
	return sb.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
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
