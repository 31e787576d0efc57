// Package gateway implements the LLM gateway client: request mode selection,
// response decoding and ordered fallback across candidate endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tarot-oracle/internal/config"
	"tarot-oracle/internal/models"
)

const (
	chatPath       = "/api/chat"
	generatePath   = "/api/generate"
	openAIChatPath = "/chat/completions"

	contentTypeJSON   = "application/json"
	userAgent         = "tarot-oracle/0.1"
	maxErrorBodyBytes = 64 * 1024

	tracerName = "tarot-oracle/internal/gateway"
)

// Client forwards generation requests to the configured LLM endpoints.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	protocol       string
	model          string
	stream         bool
	forceGenerate  bool
	apiKey         string
	defaultOptions map[string]any

	httpClient    *http.Client
	openAIClients map[string]*openai.Client
	driver        fallbackDriver
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the upstream HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger overrides the logger used for attempt diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client from the LLM configuration.
func New(cfg config.LLMConfig, opts ...Option) (*Client, error) {
	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if protocol == "" {
		protocol = config.ProtocolOllama
	}
	if protocol != config.ProtocolOllama && protocol != config.ProtocolOpenAI {
		return nil, fmt.Errorf("unsupported llm protocol %q", cfg.Protocol)
	}
	if protocol == config.ProtocolOpenAI && cfg.Stream {
		return nil, fmt.Errorf("streaming is not supported for protocol %q", protocol)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm model must not be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		protocol:       protocol,
		model:          cfg.Model,
		stream:         cfg.Stream,
		forceGenerate:  cfg.Mode == config.ModeGenerate,
		apiKey:         cfg.APIKey,
		defaultOptions: cloneOptions(cfg.Options),
		httpClient:     newHTTPClient(cfg.Headers),
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	candidates := cfg.Endpoints()
	c.driver = fallbackDriver{
		candidates: candidates,
		timeout:    timeout,
		logger:     c.logger,
		tracer:     c.tracer,
	}

	if protocol == config.ProtocolOpenAI {
		c.openAIClients = make(map[string]*openai.Client, len(candidates))
		for _, baseURL := range candidates {
			oc := openai.DefaultConfig(cfg.APIKey)
			oc.BaseURL = baseURL
			oc.HTTPClient = c.httpClient
			c.openAIClients[baseURL] = openai.NewClientWithConfig(oc)
		}
	}

	return c, nil
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.model
}

// Endpoints returns the candidate base URLs in priority order.
func (c *Client) Endpoints() []string {
	out := make([]string, len(c.driver.candidates))
	copy(out, c.driver.candidates)
	return out
}

// Generate sends the request to the first endpoint that answers successfully.
// Malformed-but-typed input is forwarded as is; only downstream failures are
// returned, as *ExhaustedEndpointsError (or ErrNoEndpoints).
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	generationID := uuid.NewString()

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	options := mergeOptions(c.defaultOptions, req.Options)

	ctx, span := c.tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		attribute.String("llm.generation_id", generationID),
		attribute.String("llm.model", model),
		attribute.String("llm.protocol", c.protocol),
	))
	defer span.End()

	var (
		path    string
		attempt attemptFunc
	)
	if c.protocol == config.ProtocolOpenAI {
		path = openAIChatPath
		attempt = c.openAIAttempt(model, chatMessages(req), options)
	} else {
		plan, err := c.planRequest(req, model, options)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		path = plan.path
		attempt = c.ollamaAttempt(plan)
	}

	result, err := c.driver.run(ctx, path, generationID, attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.ID = generationID
	if result.Model == "" {
		result.Model = model
	}
	return result, nil
}

type requestPlan struct {
	mode models.Mode
	path string
	body []byte
}

type chatPayload struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  map[string]any       `json:"options,omitempty"`
}

type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// planRequest picks chat mode for a non-empty message list, otherwise
// generate mode with the prompt verbatim or the flattened messages.
func (c *Client) planRequest(req models.GenerationRequest, model string, options map[string]any) (requestPlan, error) {
	var (
		plan    requestPlan
		payload any
	)
	if !c.forceGenerate && len(req.Messages) > 0 {
		plan.mode, plan.path = models.ModeChat, chatPath
		payload = chatPayload{
			Model:    model,
			Messages: req.Messages,
			Stream:   c.stream,
			Options:  options,
		}
	} else {
		plan.mode, plan.path = models.ModeGenerate, generatePath
		payload = generatePayload{
			Model:   model,
			Prompt:  resolvePrompt(req),
			Stream:  c.stream,
			Options: options,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return requestPlan{}, fmt.Errorf("marshal payload: %w", err)
	}
	plan.body = body
	return plan, nil
}

func resolvePrompt(req models.GenerationRequest) string {
	if req.Prompt != nil {
		return *req.Prompt
	}
	if req.Messages == nil {
		return NormalizePrompt(nil)
	}
	return NormalizePrompt(req.Messages)
}

func (c *Client) ollamaAttempt(plan requestPlan) attemptFunc {
	return func(ctx context.Context, baseURL string) (*models.GenerationResult, error) {
		httpReq, err := c.newRequest(ctx, baseURL+plan.path, plan.body)
		if err != nil {
			return nil, err
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, &TransportError{BaseURL: baseURL, Path: plan.path, Err: err}
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
			return nil, newHTTPError(baseURL, plan.path, httpResp.StatusCode, body)
		}

		decoded, err := c.decodeBody(httpResp.Body)
		if err != nil {
			return nil, classifyDecodeError(baseURL, plan.path, err)
		}

		return &models.GenerationResult{
			Text:  decoded.Text,
			Mode:  plan.mode,
			Done:  decoded.Done,
			Model: payloadModel(decoded.Raw),
			Raw:   decoded.Raw,
		}, nil
	}
}

func (c *Client) decodeBody(body io.Reader) (StreamResult, error) {
	if c.stream {
		return DecodeStream(body)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return StreamResult{}, err
	}
	return decodeSingle(raw)
}

func classifyDecodeError(baseURL, path string, err error) error {
	var inBand *inBandError
	if errors.As(err, &inBand) {
		return &UpstreamStreamError{BaseURL: baseURL, Path: path, Message: inBand.Message, Detail: inBand.Payload}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &UpstreamStreamError{BaseURL: baseURL, Path: path, Message: "invalid response body", Detail: err.Error()}
	}
	return &TransportError{BaseURL: baseURL, Path: path, Err: err}
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	if !c.stream {
		req.Header.Set("Accept", contentTypeJSON)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func cloneOptions(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}

// mergeOptions overlays request options on the configured defaults. The
// result is nil when both are empty so the field is omitted upstream.
func mergeOptions(defaults, overrides map[string]any) map[string]any {
	merged := cloneOptions(defaults)
	if len(overrides) == 0 {
		return merged
	}
	if merged == nil {
		merged = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
