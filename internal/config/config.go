package config

import (
	"fmt"
	"os"
	"strings"
)

// Config is the complete application configuration.
type Config struct {
	Agent           AgentConfig            `toml:"agent"`
	Models          map[string]ModelConfig `toml:"models"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
	Metrics         MetricsConfig          `toml:"metrics"`
}

// AgentConfig holds the solving-loop settings.
type AgentConfig struct {
	Language              string `toml:"language"`
	MaxAttempts           int    `toml:"max_attempts"`
	GenerationRetries     int    `toml:"generation_retries"`      // transient generator failures before aborting
	HistoryCap            int    `toml:"history_cap"`             // max conversation exchange pairs kept
	Headless              bool   `toml:"headless"`
	ProblemURL            string `toml:"problem_url"`             // empty = daily challenge
	BaseURL               string `toml:"base_url"`                // challenge site root
	SolutionsDir          string `toml:"solutions_dir"`
	OverwriteSolutions    bool   `toml:"overwrite_solutions"`     // allow replacing a previously accepted solution
	WriteExplanations     bool   `toml:"write_explanations"`      // ask the model for a markdown write-up after acceptance
	JudgeTimeoutSeconds   int    `toml:"judge_timeout_seconds"`   // submission verdict wait
	ExtractTimeoutSeconds int    `toml:"extract_timeout_seconds"` // problem/editor element wait
}

// ModelConfig configures one OpenAI-compatible model endpoint.
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxRetries         int     `toml:"max_retries"`
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"`
}

// PromptTemplates holds the customizable prompt templates. All are Go
// text/template strings; see defaults.go for the shipped versions.
type PromptTemplates struct {
	SystemPrompt string `toml:"system_prompt"`
	FirstAttempt string `toml:"first_attempt"`
	Repair       string `toml:"repair"`
	Writeup      string `toml:"writeup"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Secrets holds credentials loaded from environment variables, never TOML.
type Secrets struct {
	APIKeys map[string]string

	// SessionCookie is the site login cookie. When set, headless runs
	// authenticate with it instead of an interactive login.
	SessionCookie string
}

// Supported target languages, mirroring the site's language picker.
var supportedLanguages = map[string]bool{
	"java": true, "python": true, "python3": true, "javascript": true,
	"typescript": true, "csharp": true, "c": true, "cpp": true,
	"golang": true, "kotlin": true, "swift": true, "rust": true,
	"ruby": true, "php": true, "scala": true, "dart": true,
	"elixir": true, "erlang": true, "racket": true,
}

const (
	// MaxAttemptsLimit bounds the attempt budget.
	MaxAttemptsLimit = 50
	// MaxGenerationRetries bounds the transient-fault retry budget.
	MaxGenerationRetries = 5
)

// Validate checks ranges and required fields after defaults are applied.
func (c *Config) Validate() error {
	if !supportedLanguages[c.Agent.Language] {
		return fmt.Errorf("agent.language %q is not supported", c.Agent.Language)
	}
	if c.Agent.MaxAttempts < 1 || c.Agent.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("agent.max_attempts must be between 1 and %d (got %d)", MaxAttemptsLimit, c.Agent.MaxAttempts)
	}
	if c.Agent.GenerationRetries < 0 || c.Agent.GenerationRetries > MaxGenerationRetries {
		return fmt.Errorf("agent.generation_retries must be between 0 and %d (got %d)", MaxGenerationRetries, c.Agent.GenerationRetries)
	}
	if c.Agent.HistoryCap < 1 {
		return fmt.Errorf("agent.history_cap must be at least 1 (got %d)", c.Agent.HistoryCap)
	}
	if c.Agent.JudgeTimeoutSeconds < 1 {
		return fmt.Errorf("agent.judge_timeout_seconds must be at least 1 (got %d)", c.Agent.JudgeTimeoutSeconds)
	}
	if c.Agent.ExtractTimeoutSeconds < 1 {
		return fmt.Errorf("agent.extract_timeout_seconds must be at least 1 (got %d)", c.Agent.ExtractTimeoutSeconds)
	}

	mainModel, ok := c.Models["main"]
	if !ok {
		return fmt.Errorf("models.main is required")
	}
	if err := validateModelConfig("main", mainModel); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics.enabled is true")
	}

	if c.PromptTemplates.SystemPrompt == "" {
		return fmt.Errorf("prompt_templates.system_prompt is required")
	}
	if c.PromptTemplates.FirstAttempt == "" {
		return fmt.Errorf("prompt_templates.first_attempt is required")
	}
	if c.PromptTemplates.Repair == "" {
		return fmt.Errorf("prompt_templates.repair is required")
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	return nil
}

// LoadSecrets loads API credentials from environment variables.
func LoadSecrets() *Secrets {
	secrets := &Secrets{APIKeys: make(map[string]string)}

	// Generic key works for any OpenAI-compatible provider.
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	// Provider-specific keys override the generic one.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		secrets.APIKeys["google"] = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		secrets.APIKeys["anthropic"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	secrets.SessionCookie = os.Getenv("LEETCODE_SESSION")

	return secrets
}

// GetAPIKey returns the API key matching a model base URL, falling back to
// the generic key. An empty result is legal for local unauthenticated
// servers.
func (s *Secrets) GetAPIKey(baseURL string) string {
	providers := map[string][]string{
		"openai":    {"openai.com"},
		"google":    {"googleapis.com"},
		"anthropic": {"anthropic.com"},
		"together":  {"together.xyz", "together.ai"},
	}
	for provider, domains := range providers {
		for _, domain := range domains {
			if strings.Contains(baseURL, domain) {
				if key := s.APIKeys[provider]; key != "" {
					return key
				}
			}
		}
	}
	return s.APIKeys["generic"]
}
