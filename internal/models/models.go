package models

// Mode identifies the upstream request shape used to produce a result.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeGenerate Mode = "generate"
)

// ChatMessage represents a single conversational message. Order within a
// message list is conversation order.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is the logical request handed to the gateway client.
type GenerationRequest struct {
	Model    string
	Messages []ChatMessage
	// Prompt is nil when absent; an empty string is a present prompt.
	Prompt  *string
	Options map[string]any
}

// GenerationResult captures a successful generation.
type GenerationResult struct {
	ID      string
	Text    string
	Mode    Mode
	Done    bool
	Model   string
	BaseURL string
	// Raw is the last structured response body seen for this attempt.
	Raw map[string]any
}
