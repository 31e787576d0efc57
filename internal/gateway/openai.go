package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"tarot-oracle/internal/models"
)

// chatMessages returns the structured conversation for chat-only protocols;
// a bare prompt becomes a single user message.
func chatMessages(req models.GenerationRequest) []models.ChatMessage {
	if len(req.Messages) > 0 {
		return req.Messages
	}
	return []models.ChatMessage{{Role: openai.ChatMessageRoleUser, Content: resolvePrompt(req)}}
}

func buildOpenAIRequest(model string, messages []models.ChatMessage, options map[string]any) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	if v, ok := extractFloat(options, "temperature"); ok {
		req.Temperature = float32(v)
	}
	if v, ok := extractInt(options, "max_tokens"); ok {
		req.MaxTokens = v
	} else if v, ok := extractInt(options, "num_predict"); ok {
		req.MaxTokens = v
	}
	if v, ok := extractFloat(options, "top_p"); ok {
		req.TopP = float32(v)
	}
	if stop, ok := extractStringSlice(options, "stop"); ok {
		req.Stop = stop
	}
	return req
}

func (c *Client) openAIAttempt(model string, messages []models.ChatMessage, options map[string]any) attemptFunc {
	req := buildOpenAIRequest(model, messages, options)

	return func(ctx context.Context, baseURL string) (*models.GenerationResult, error) {
		client, ok := c.openAIClients[baseURL]
		if !ok {
			return nil, &TransportError{BaseURL: baseURL, Path: openAIChatPath, Err: errors.New("no client for endpoint")}
		}

		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, classifyOpenAIError(baseURL, err)
		}

		raw := toRawPayload(resp)
		if len(resp.Choices) == 0 {
			return nil, &UpstreamStreamError{
				BaseURL: baseURL,
				Path:    openAIChatPath,
				Message: "openai response did not include choices",
				Detail:  raw,
			}
		}

		choice := resp.Choices[0]
		return &models.GenerationResult{
			Text:  strings.TrimSpace(choice.Message.Content),
			Mode:  models.ModeChat,
			Done:  true,
			Model: resp.Model,
			Raw:   raw,
		}, nil
	}
}

func classifyOpenAIError(baseURL string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamHTTPError{
			BaseURL: baseURL,
			Path:    openAIChatPath,
			Status:  apiErr.HTTPStatusCode,
			Detail: map[string]any{
				"message": apiErr.Message,
				"type":    apiErr.Type,
				"code":    apiErr.Code,
			},
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := any(http.StatusText(reqErr.HTTPStatusCode))
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return &UpstreamHTTPError{
			BaseURL: baseURL,
			Path:    openAIChatPath,
			Status:  reqErr.HTTPStatusCode,
			Detail:  detail,
		}
	}

	return &TransportError{BaseURL: baseURL, Path: openAIChatPath, Err: err}
}

// toRawPayload converts the typed response into the generic payload shape
// exposed as result metadata.
func toRawPayload(resp openai.ChatCompletionResponse) map[string]any {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return nil
	}
	return raw
}

func extractFloat(options map[string]any, key string) (float64, bool) {
	if options == nil {
		return 0, false
	}

	if value, ok := options[key]; ok {
		switch v := value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func extractInt(options map[string]any, key string) (int, bool) {
	if options == nil {
		return 0, false
	}
	if value, ok := options[key]; ok {
		switch v := value.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return int(i), true
			}
		}
	}
	return 0, false
}

func extractStringSlice(options map[string]any, key string) ([]string, bool) {
	if options == nil {
		return nil, false
	}
	value, ok := options[key]
	if !ok {
		return nil, false
	}
	switch v := value.(type) {
	case []string:
		return v, true
	case string:
		return []string{v}, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, str)
		}
		return result, true
	}
	return nil, false
}
