package suggest

import (
	"encoding/json"
	"fmt"
	"strings"
)

const defaultSystemPrompt = `You draft short reply suggestions for a messaging app. ` +
	`Given the recent messages of one conversation, suggest natural replies the user could send next. ` +
	`Keep each reply under 15 words, casual, and ready to send as-is. ` +
	`Respond with ONLY a JSON array of strings, no prose.`

// buildUserPrompt formats the conversation context for the model.
// Lines arrive oldest first in the form "direction: text".
func buildUserPrompt(convo string, n int) string {
	convo = strings.TrimSpace(convo)
	if convo == "" {
		convo = "(no messages yet, the user is starting the conversation)"
	}
	return fmt.Sprintf("Conversation so far:\n%s\n\nSuggest %d replies.", convo, n)
}

// parseReplies extracts reply strings from raw model output.
// Accepts a JSON array (possibly inside a code fence) or falls back to
// line splitting with bullet/number cleanup. Returns at most max replies,
// and never more than 5.
func parseReplies(raw string, max int) []string {
	if max < 1 {
		max = 1
	}
	if max > 5 {
		max = 5
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if arr := tryJSONArray(raw); len(arr) > 0 {
		return capReplies(arr, max)
	}

	// Plain lines: strip list markers and surrounding quotes
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = cleanLine(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return capReplies(out, max)
}

// tryJSONArray pulls a JSON string array out of the response, tolerating
// markdown code fences and leading chatter before the bracket.
func tryJSONArray(raw string) []string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var arr []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &arr); err != nil {
		return nil
	}

	var out []string
	for _, s := range arr {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•")
	// Strip "1." / "2)" numbering
	for i, r := range line {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == ')' {
			line = line[i+1:]
		}
		break
	}
	line = strings.TrimSpace(line)
	line = strings.Trim(line, `"'`)
	if line == "```" || strings.HasPrefix(line, "```") {
		return ""
	}
	return strings.TrimSpace(line)
}

func capReplies(replies []string, max int) []string {
	if len(replies) > max {
		return replies[:max]
	}
	return replies
}
