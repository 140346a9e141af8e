// Package intake runs the conversational configurator that collects the
// user's six learning preferences. The assistant asks for one field at a
// time; the package tracks which field each answer belongs to, detects
// the completion signal, and handles the final confirmation exchange.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pathly-ai/pathly/internal/llm"
	"github.com/pathly-ai/pathly/internal/llm/prompts"
	"github.com/pathly-ai/pathly/internal/model"
	"github.com/pathly-ai/pathly/internal/pipeline"
)

// Field names one of the six collected preferences.
type Field string

const (
	FieldTopic      Field = "topic"
	FieldGoal       Field = "goal"
	FieldLevel      Field = "level"
	FieldCommitment Field = "commitment"
	FieldDuration   Field = "duration"
	FieldStyle      Field = "style"
	FieldNone       Field = ""
)

// ClassifyQuestion guesses which preference field an assistant message is
// asking about, from characteristic phrases. Topic is not classified
// here: the first user message is always the topic.
func ClassifyQuestion(text string) Field {
	lower := strings.ToLower(text)
	anyOf := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
	switch {
	case anyOf("goal", "achieve", "be able to do"):
		return FieldGoal
	case anyOf("knowledge", "level", "rate yourself", "prior experience"):
		return FieldLevel
	case anyOf("time per week", "hours per week", "commitment"):
		return FieldCommitment
	case anyOf("total duration", "how long", "sprint", "deep-dive"):
		return FieldDuration
	case anyOf("learn best", "projects", "theoretical", "visual"):
		return FieldStyle
	default:
		return FieldNone
	}
}

var (
	affirmations = map[string]bool{
		"ja": true, "yes": true, "ok": true, "yep": true, "sure": true,
		"sounds good": true, "right": true, "correct": true,
		"looks good": true, "exactly": true,
	}
	punctRe = regexp.MustCompile(`[.,!?;]`)
)

// IsAffirmative reports whether the input confirms the summarized
// preferences.
func IsAffirmative(input string) bool {
	normalized := punctRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), "")
	return affirmations[strings.TrimSpace(normalized)]
}

var fencedObjectRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseCompletion checks an assistant reply for the completion signal.
// When present it extracts the fenced preference JSON and returns the
// conversational text that preceded it. ok is false when the reply is an
// ordinary conversational turn.
func ParseCompletion(reply string) (visible string, choices model.UserChoices, ok bool, err error) {
	signalIndex := strings.Index(reply, prompts.CompletionSignal)
	if signalIndex < 0 {
		return "", model.UserChoices{}, false, nil
	}

	beforeSignal := reply[:signalIndex]
	m := fencedObjectRe.FindStringSubmatchIndex(beforeSignal)
	if m == nil {
		return "", model.UserChoices{}, true,
			fmt.Errorf("completion signal present but preference JSON is missing or malformed")
	}

	visible = strings.TrimSpace(beforeSignal[:m[0]])
	jsonText := beforeSignal[m[2]:m[3]]

	if err := json.Unmarshal([]byte(jsonText), &choices); err != nil {
		return visible, model.UserChoices{}, true, fmt.Errorf("decode preference JSON: %w", err)
	}
	if !choices.Complete() {
		return visible, model.UserChoices{}, true, fmt.Errorf("incomplete configuration data received")
	}
	return visible, choices, true, nil
}

// Chatter is the conversational model surface the intake needs.
type Chatter interface {
	Chat(ctx context.Context, system string, history []llm.Message, temperature float32) (string, error)
}

// Reply is the outcome of one intake turn.
type Reply struct {
	// Text is the assistant's visible message for this turn.
	Text string `json:"text"`
	// AwaitingConfirmation is set when all fields are collected and the
	// next user turn decides whether to proceed.
	AwaitingConfirmation bool `json:"awaitingConfirmation"`
	// Confirmed is set when the user just accepted the configuration.
	Confirmed bool `json:"confirmed"`
	// Choices carries the collected preferences once confirmed or
	// awaiting confirmation.
	Choices *model.UserChoices `json:"choices,omitempty"`
	// EstimatedHours and LimitExceeded carry the workload projection
	// shown with the confirmation request.
	EstimatedHours float64 `json:"estimatedHours,omitempty"`
	LimitExceeded  bool    `json:"limitExceeded,omitempty"`
}

// Conversation is one user's intake session state.
type Conversation struct {
	history      []llm.Message
	intermediate model.UserChoices
	pending      *model.UserChoices
	userTurns    int
}

// NewConversation starts an empty intake conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Partial returns the preferences gathered so far from the user's own
// answers. Used as a fallback display; the confirmed set always comes
// from the assistant's JSON.
func (c *Conversation) Partial() model.UserChoices {
	return c.intermediate
}

// Handle processes one user message and returns the assistant's turn.
func (c *Conversation) Handle(ctx context.Context, chat Chatter, userInput string) (Reply, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Reply{}, fmt.Errorf("empty message")
	}

	if c.pending != nil {
		pending := *c.pending
		c.pending = nil
		if IsAffirmative(userInput) {
			return Reply{Confirmed: true, Choices: &pending}, nil
		}
		// Declined: fall through and let the assistant rework the
		// summary conversationally.
	}

	c.recordIntermediate(userInput)
	c.history = append(c.history, llm.Message{Role: llm.RoleUser, Content: userInput})
	c.userTurns++

	reply, err := chat.Chat(ctx, prompts.SystemConfiguratorChat, c.history, prompts.TemperatureChat)
	if err != nil {
		// The failed turn stays out of history so a retry resends it.
		c.history = c.history[:len(c.history)-1]
		c.userTurns--
		return Reply{}, err
	}
	c.history = append(c.history, llm.Message{Role: llm.RoleAssistant, Content: reply})

	visible, choices, signaled, err := ParseCompletion(reply)
	if !signaled {
		return Reply{Text: reply}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("configurator completion: %w", err)
	}

	c.pending = &choices
	hours, exceeded := pipeline.ExceedsHourLimit(choices.Commitment, choices.Duration)
	return Reply{
		Text:                 visible,
		AwaitingConfirmation: true,
		Choices:              &choices,
		EstimatedHours:       hours,
		LimitExceeded:        exceeded,
	}, nil
}

// recordIntermediate attributes the user's answer to the field the
// assistant last asked about. The first user turn is always the topic.
func (c *Conversation) recordIntermediate(userInput string) {
	if c.userTurns == 0 {
		c.intermediate.Topic = userInput
		return
	}
	lastAssistant := ""
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role == llm.RoleAssistant {
			lastAssistant = c.history[i].Content
			break
		}
	}
	switch ClassifyQuestion(lastAssistant) {
	case FieldGoal:
		c.intermediate.Goal = userInput
	case FieldLevel:
		c.intermediate.Level = userInput
	case FieldCommitment:
		c.intermediate.Commitment = userInput
	case FieldDuration:
		c.intermediate.Duration = userInput
	case FieldStyle:
		c.intermediate.Style = userInput
	}
}
