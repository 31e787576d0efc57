package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"tarot-oracle/internal/models"
	"tarot-oracle/internal/tarot"
)

const (
	msgCardsRequired = "`cards` must be a non-empty array."
	msgCardNumber    = "Each card must include a numeric `number`."
	msgPromptMissing = "either `messages` or `prompt` is required"
)

func decodeRequestBody[T any](c echo.Context, target *T) error {
	return decodeJSON(c, target, false)
}

// decodeOptionalBody treats an empty body as an empty object.
func decodeOptionalBody[T any](c echo.Context, target *T) error {
	return decodeJSON(c, target, true)
}

func decodeJSON[T any](c echo.Context, target *T, allowEmpty bool) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			if allowEmpty {
				return nil
			}
			return validationError("request body is required")
		case errors.As(err, &tooLarge):
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Type:    errTypeInvalidRequest,
			}
		}
		return validationError(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return validationError("request body must contain a single JSON object")
	}
	return nil
}

type spreadRequest struct {
	Cards any    `json:"cards"`
	Tone  string `json:"tone"`
}

// normalize validates the raw card list and keeps at most three cards.
func (r spreadRequest) normalize() ([]tarot.SpreadCard, error) {
	raw, ok := r.Cards.([]any)
	if !ok || len(raw) == 0 {
		return nil, validationError(msgCardsRequired)
	}
	if len(raw) > tarot.MaxSpreadCards {
		raw = raw[:tarot.MaxSpreadCards]
	}

	cards := make([]tarot.SpreadCard, 0, len(raw))
	for _, entry := range raw {
		fields, _ := entry.(map[string]any)
		number, ok := numericValue(fields["number"])
		if !ok {
			return nil, validationError(msgCardNumber)
		}
		cards = append(cards, tarot.SpreadCard{
			Number:   number,
			Inverted: truthy(fields["inverted"]),
		})
	}
	return cards, nil
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

type generateRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Prompt   *string              `json:"prompt"`
	Options  map[string]any       `json:"options"`
}

func (r generateRequest) toGeneration() (models.GenerationRequest, error) {
	if len(r.Messages) == 0 && r.Prompt == nil {
		return models.GenerationRequest{}, validationError(msgPromptMissing)
	}
	for i, msg := range r.Messages {
		if strings.TrimSpace(msg.Role) == "" {
			return models.GenerationRequest{}, validationError(fmt.Sprintf("messages[%d].role is required", i))
		}
	}
	return models.GenerationRequest{
		Model:    strings.TrimSpace(r.Model),
		Messages: r.Messages,
		Prompt:   r.Prompt,
		Options:  r.Options,
	}, nil
}
