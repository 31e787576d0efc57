package gateway

import (
	"strings"
	"testing"

	"tarot-oracle/internal/models"
)

func TestNormalizePromptMessages(t *testing.T) {
	got := NormalizePrompt([]models.ChatMessage{
		{Role: "system", Content: "Be kind."},
		{Role: "user", Content: "Read my cards."},
	})
	want := "SYSTEM: Be kind.\nUSER: Read my cards.\nASSISTANT:"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalizePromptLooseEntries(t *testing.T) {
	got := NormalizePrompt([]any{
		map[string]any{"content": "no role"},
		map[string]any{"role": "assistant"},
		map[string]any{"role": "user", "content": map[string]any{"card": 3}},
		42,
	})
	want := strings.Join([]string{
		"USER: no role",
		`ASSISTANT: ""`,
		`USER: {"card":3}`,
		`USER: ""`,
	}, "\n") + "\nASSISTANT:"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalizePromptNonList(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"number", 12, "12"},
		{"empty list", []models.ChatMessage{}, "\nASSISTANT:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrompt(tt.input); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
