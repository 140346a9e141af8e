// Package sanitize cleans up structured output returned by language
// models: markdown code fences, stray control characters, and missing
// lesson fields. Every generated JSON payload passes through here before
// it is decoded into a typed struct.
package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const previewLimit = 500

// JSON extracts and validates a JSON document from raw model output.
// A single ```json ... ``` fence is stripped if present, ASCII control
// characters that break decoding are removed, and the result is checked
// to be well-formed. The returned string is the cleaned JSON text.
func JSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	if fenced, ok := extractFence(text); ok {
		text = fenced
	}
	text = stripControlChars(text)
	text = strings.TrimSpace(text)

	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("model returned malformed JSON: %s", preview(text))
	}
	return text, nil
}

// Decode sanitizes raw model output and unmarshals it into v.
func Decode(raw string, v any) error {
	text, err := JSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode model JSON: %w (%s)", err, preview(text))
	}
	return nil
}

// extractFence returns the body of the first ```json or ``` fenced block.
func extractFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if after, ok := strings.CutPrefix(rest, "json"); ok {
		rest = after
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		// Unterminated fence: take everything after the opener.
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// stripControlChars drops ASCII control characters except the whitespace
// JSON itself is allowed to contain between tokens.
func stripControlChars(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, text)
}

func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	// Back off to a rune boundary so the preview stays valid UTF-8.
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
