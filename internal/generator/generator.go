// Package generator wraps a chat-completion client with per-session
// conversation memory, turning problem statements and judge feedback into
// candidate solutions.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leetforge/internal/config"
	"leetforge/internal/llm"
	"leetforge/internal/util"
	"leetforge/pkg/models"
)

// GenerationError means the model call failed or returned an empty or
// unparseable completion. Transient failures are retried by the solver up to
// its retry budget; non-transient ones (bad template, missing problem) abort
// immediately.
type GenerationError struct {
	Cause     error
	Transient bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// GenerationContext carries everything one generation call needs. On the
// first attempt only the problem is set; retries also carry the previous
// attempt and its verdict so the repair prompt can quote the failing case.
type GenerationContext struct {
	Problem      *models.Problem
	PriorAttempt *models.Attempt
	PriorVerdict *models.Verdict
}

// isTransient classifies a client failure. The client already refuses to
// retry non-retryable API errors (bad key, malformed request), so those must
// not come back around through the solver's retry budget either.
func isTransient(err error) bool {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return true
}

// completionClient is the slice of llm.Client the generator needs.
type completionClient interface {
	ChatCompletion(ctx context.Context, modelCfg config.ModelConfig, apiKey string, messages []llm.Message) (*llm.ChatCompletionResponse, error)
}

// Generator owns one model conversation. It is bound to a single session and
// is not safe for concurrent use.
type Generator struct {
	client     completionClient
	modelCfg   config.ModelConfig
	apiKey     string
	templates  config.PromptTemplates
	historyCap int
	logger     *slog.Logger

	history    []llm.Message
	tokensUsed int
}

// New creates a generator seeded with the configured system prompt.
func New(client *llm.Client, modelCfg config.ModelConfig, apiKey string, templates config.PromptTemplates, historyCap int, logger *slog.Logger) *Generator {
	return newGenerator(client, modelCfg, apiKey, templates, historyCap, logger)
}

func newGenerator(client completionClient, modelCfg config.ModelConfig, apiKey string, templates config.PromptTemplates, historyCap int, logger *slog.Logger) *Generator {
	return &Generator{
		client:     client,
		modelCfg:   modelCfg,
		apiKey:     apiKey,
		templates:  templates,
		historyCap: historyCap,
		logger:     logger.With("component", "generator"),
		history:    []llm.Message{{Role: "system", Content: templates.SystemPrompt}},
	}
}

// Generate produces candidate source code for the given context.
func (g *Generator) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	prompt, err := g.buildPrompt(gc)
	if err != nil {
		return "", &GenerationError{Cause: err}
	}

	completion, err := g.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	code := util.ExtractCode(completion)
	if code == "" {
		return "", &GenerationError{Cause: fmt.Errorf("model returned no code"), Transient: true}
	}

	return code, nil
}

// Chat sends one conversational turn and returns the raw completion. The
// exchange is appended to history so later turns retain context of earlier
// failed attempts.
func (g *Generator) Chat(ctx context.Context, message string) (string, error) {
	messages := append(append([]llm.Message{}, g.history...), llm.Message{Role: "user", Content: message})

	start := time.Now()
	resp, err := g.client.ChatCompletion(ctx, g.modelCfg, g.apiKey, messages)
	if err != nil {
		return "", &GenerationError{Cause: err, Transient: isTransient(err)}
	}

	completion := resp.Choices[0].Message.Content
	g.tokensUsed += resp.Usage.TotalTokens

	g.logger.Debug("Model turn complete",
		"duration", time.Since(start),
		"turn_tokens", resp.Usage.TotalTokens,
		"total_tokens", g.tokensUsed,
		"completion_preview", util.TruncateString(completion, 120))

	g.appendExchange(message, completion)
	return completion, nil
}

// Usage returns cumulative token usage across the conversation. The counter
// is monotonically increasing for the lifetime of the generator.
func (g *Generator) Usage() int {
	return g.tokensUsed
}

// HistoryLen returns the number of messages currently retained, including
// the system prompt.
func (g *Generator) HistoryLen() int {
	return len(g.history)
}

// Summary describes the conversation for end-of-run reporting.
type Summary struct {
	Model             string
	UserMessages      int
	AssistantMessages int
	TokensUsed        int
}

// ConversationSummary returns counts for end-of-run reporting.
func (g *Generator) ConversationSummary() Summary {
	s := Summary{Model: g.modelCfg.ModelName, TokensUsed: g.tokensUsed}
	for _, m := range g.history {
		switch m.Role {
		case "user":
			s.UserMessages++
		case "assistant":
			s.AssistantMessages++
		}
	}
	return s
}

func (g *Generator) buildPrompt(gc GenerationContext) (string, error) {
	if gc.Problem == nil {
		return "", fmt.Errorf("generation context has no problem")
	}

	if gc.PriorAttempt == nil {
		return util.RenderTemplate(g.templates.FirstAttempt, map[string]any{
			"Statement":   gc.Problem.Statement,
			"StarterCode": gc.Problem.StarterCode,
			"Language":    gc.Problem.Language,
		})
	}

	if gc.PriorVerdict == nil {
		return "", fmt.Errorf("retry context has an attempt but no verdict")
	}
	d := gc.PriorVerdict.Diagnostic
	return util.RenderTemplate(g.templates.Repair, map[string]any{
		"VerdictKind":  string(gc.PriorVerdict.Kind),
		"FailingInput": d.FailingInput,
		"Expected":     d.Expected,
		"Actual":       d.Actual,
		"ErrorMessage": d.ErrorMessage,
		"Raw":          d.Raw,
	})
}

// appendExchange records a user/assistant pair and drops the oldest pairs
// beyond the history cap. The system prompt is always retained.
func (g *Generator) appendExchange(user, assistant string) {
	g.history = append(g.history,
		llm.Message{Role: "user", Content: user},
		llm.Message{Role: "assistant", Content: assistant})

	maxMessages := 1 + g.historyCap*2
	if g.historyCap > 0 && len(g.history) > maxMessages {
		overflow := len(g.history) - maxMessages
		trimmed := make([]llm.Message, 0, maxMessages)
		trimmed = append(trimmed, g.history[0])
		trimmed = append(trimmed, g.history[1+overflow:]...)
		g.history = trimmed
	}
}
