package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProtocolOllama = "ollama"
	ProtocolOpenAI = "openai"

	ModeAuto     = "auto"
	ModeGenerate = "generate"
)

const (
	defaultPort    = 5001
	defaultModel   = "tinyllama"
	defaultBaseURL = "http://192.168.1.10:11434"
	defaultTimeout = 60 * time.Second
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LLMConfig describes the upstream language model service and its fallbacks.
type LLMConfig struct {
	Protocol         string         `yaml:"protocol"`
	Model            string         `yaml:"model"`
	BaseURL          string         `yaml:"base_url"`
	FallbackBaseURLs []string       `yaml:"fallback_base_urls"`
	APIKey           string         `yaml:"api_key"`
	Timeout          time.Duration  `yaml:"timeout"`
	Stream           bool           `yaml:"stream"`
	Mode             string         `yaml:"mode"`
	Headers          Headers        `yaml:"headers"`
	Options          map[string]any `yaml:"options"`
}

// TelemetryConfig enables trace export when an OTLP endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Headers contains additional HTTP headers to send with an upstream request.
type Headers map[string]string

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           defaultPort,
			AllowedOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Protocol: ProtocolOllama,
			Model:    defaultModel,
			BaseURL:  defaultBaseURL,
			Timeout:  defaultTimeout,
			Mode:     ModeAuto,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tarot-oracle",
		},
	}
}

// Load reads YAML configuration from disk (when path is non-empty), applies
// .env and environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("OPENAI_MODEL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Model = strings.TrimSpace(v)
	}
	if v, ok := lookup("OPENAI_BASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		c.LLM.APIKey = v
	}
	if v, ok := lookup("LLM_FALLBACK_BASE_URLS"); ok && strings.TrimSpace(v) != "" {
		c.LLM.FallbackBaseURLs = strings.Split(v, ",")
	}
	if v, ok := lookup("LLM_TIMEOUT_MS"); ok && strings.TrimSpace(v) != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LLM_TIMEOUT_MS must be an integer, got %q", v)
		}
		c.LLM.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup("LLM_STREAM"); ok && strings.TrimSpace(v) != "" {
		stream, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LLM_STREAM must be a boolean, got %q", v)
		}
		c.LLM.Stream = stream
	}
	if v, ok := lookup("LLM_PROTOCOL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Protocol = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		c.Telemetry.OTLPEndpoint = strings.TrimSpace(v)
	}
	return nil
}

// Endpoints returns the ordered, deduplicated candidate base URLs: the
// primary base URL first, then the fallbacks.
func (l LLMConfig) Endpoints() []string {
	candidates := make([]string, 0, 1+len(l.FallbackBaseURLs))
	candidates = append(candidates, l.BaseURL)
	candidates = append(candidates, l.FallbackBaseURLs...)
	return DedupeEndpoints(candidates)
}

// DedupeEndpoints trims each entry, strips trailing slashes, drops blanks and
// keeps the first occurrence of every remaining value.
func DedupeEndpoints(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		candidate = strings.TrimRight(strings.TrimSpace(candidate), "/")
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	llm := c.LLM
	if strings.TrimSpace(llm.Model) == "" {
		return errors.New("llm.model must be provided")
	}
	switch llm.Protocol {
	case ProtocolOllama, ProtocolOpenAI:
	default:
		return fmt.Errorf("llm.protocol %q must be one of %q or %q", llm.Protocol, ProtocolOllama, ProtocolOpenAI)
	}
	switch llm.Mode {
	case ModeAuto, ModeGenerate:
	default:
		return fmt.Errorf("llm.mode %q must be one of %q or %q", llm.Mode, ModeAuto, ModeGenerate)
	}
	if llm.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", llm.Timeout)
	}
	if llm.Protocol == ProtocolOpenAI && llm.Stream {
		return fmt.Errorf("llm.stream is not supported for protocol %q", ProtocolOpenAI)
	}

	endpoints := llm.Endpoints()
	if len(endpoints) == 0 {
		return errors.New("llm.base_url or llm.fallback_base_urls must provide at least one endpoint")
	}
	for _, endpoint := range endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("llm endpoint %q must be an absolute http(s) URL", endpoint)
		}
	}

	for headerKey := range llm.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("llm: header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
