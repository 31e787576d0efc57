package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"tarot-oracle/internal/models"
)

const assistantMarker = "\nASSISTANT:"

// NormalizePrompt flattens a message list into a single prompt for the
// generate protocol. It accepts []models.ChatMessage as well as loosely typed
// lists decoded from JSON ([]any of maps); any other value is rendered with
// fmt. It never fails.
func NormalizePrompt(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case []models.ChatMessage:
		lines := make([]string, 0, len(v))
		for _, m := range v {
			lines = append(lines, renderLine(m.Role, m.Content))
		}
		return joinLines(lines)
	case []map[string]any:
		lines := make([]string, 0, len(v))
		for _, m := range v {
			lines = append(lines, renderEntry(m))
		}
		return joinLines(lines)
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			switch entry := item.(type) {
			case models.ChatMessage:
				lines = append(lines, renderLine(entry.Role, entry.Content))
			case map[string]any:
				lines = append(lines, renderEntry(entry))
			default:
				lines = append(lines, renderLine("", nil))
			}
		}
		return joinLines(lines)
	default:
		return fmt.Sprint(v)
	}
}

func renderEntry(entry map[string]any) string {
	role, _ := entry["role"].(string)
	return renderLine(role, entry["content"])
}

// renderLine renders "<ROLE>: <content>". Non-string content is JSON encoded;
// missing content encodes as the JSON empty string.
func renderLine(role string, content any) string {
	if role == "" {
		role = "user"
	}
	return strings.ToUpper(role) + ": " + contentText(content)
}

func contentText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	if content == nil {
		content = ""
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprint(content)
	}
	return string(encoded)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + assistantMarker
}
