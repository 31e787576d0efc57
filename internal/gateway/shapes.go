package gateway

import (
	"encoding/json"
	"fmt"
)

// shapeMatcher extracts a text fragment from one known response shape.
type shapeMatcher func(payload map[string]any) (string, bool)

// textMatchers are tried in priority order; the first match wins.
var textMatchers = []shapeMatcher{
	generateResponseText,
	chatMessageText,
	choiceDeltaText,
	choiceMessageText,
	choiceText,
}

// extractText returns the text fragment carried by payload, if any.
func extractText(payload map[string]any) (string, bool) {
	for _, match := range textMatchers {
		if text, ok := match(payload); ok {
			return text, true
		}
	}
	return "", false
}

// {"response": "..."}
func generateResponseText(payload map[string]any) (string, bool) {
	return nonEmptyString(payload["response"])
}

// {"message": {"content": "..."}}
func chatMessageText(payload map[string]any) (string, bool) {
	message, ok := payload["message"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(message["content"])
}

// {"choices": [{"delta": {"content": "..."}}]}
func choiceDeltaText(payload map[string]any) (string, bool) {
	choice, ok := firstChoice(payload)
	if !ok {
		return "", false
	}
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(delta["content"])
}

// {"choices": [{"message": {"content": "..."}}]}
func choiceMessageText(payload map[string]any) (string, bool) {
	choice, ok := firstChoice(payload)
	if !ok {
		return "", false
	}
	return chatMessageText(choice)
}

// {"choices": [{"text": "..."}]}
func choiceText(payload map[string]any) (string, bool) {
	choice, ok := firstChoice(payload)
	if !ok {
		return "", false
	}
	return nonEmptyString(choice["text"])
}

func firstChoice(payload map[string]any) (map[string]any, bool) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

func nonEmptyString(value any) (string, bool) {
	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// payloadDone reports whether the payload marks the response as complete.
func payloadDone(payload map[string]any) bool {
	if done, ok := payload["done"].(bool); ok && done {
		return true
	}
	if choice, ok := firstChoice(payload); ok {
		if _, ok := nonEmptyString(choice["finish_reason"]); ok {
			return true
		}
	}
	return false
}

// payloadError returns the message of an explicit error field, if present.
func payloadError(payload map[string]any) (string, bool) {
	raw, ok := payload["error"]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case map[string]any:
		if message, ok := nonEmptyString(v["message"]); ok {
			return message, true
		}
		encoded, _ := json.Marshal(v)
		return string(encoded), true
	case bool:
		if !v {
			return "", false
		}
		return "upstream reported an error", true
	default:
		return fmt.Sprint(v), true
	}
}

// payloadModel returns the model name reported by the payload.
func payloadModel(payload map[string]any) string {
	model, _ := payload["model"].(string)
	return model
}
