package generator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"leetforge/internal/config"
	"leetforge/internal/llm"
	"leetforge/pkg/models"
)

type fakeClient struct {
	completions []string
	tokens      []int
	err         error
	calls       int
	lastMsgs    []llm.Message
}

func (f *fakeClient) ChatCompletion(ctx context.Context, modelCfg config.ModelConfig, apiKey string, messages []llm.Message) (*llm.ChatCompletionResponse, error) {
	f.calls++
	f.lastMsgs = messages
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.completions) {
		idx = len(f.completions) - 1
	}
	tokens := 10
	if idx < len(f.tokens) {
		tokens = f.tokens[idx]
	}
	return &llm.ChatCompletionResponse{
		Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: f.completions[idx]}}},
		Usage:   llm.Usage{TotalTokens: tokens},
	}, nil
}

func testTemplates() config.PromptTemplates {
	return config.PromptTemplates{
		SystemPrompt: config.DefaultSystemPrompt,
		FirstAttempt: config.DefaultFirstAttemptTemplate,
		Repair:       config.DefaultRepairTemplate,
		Writeup:      config.DefaultWriteupTemplate,
	}
}

func newTestGenerator(client completionClient, historyCap int) *Generator {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return newGenerator(client, config.ModelConfig{ModelName: "test-model"}, "key", testTemplates(), historyCap, logger)
}

func twoSum() *models.Problem {
	return &models.Problem{
		Slug:        "two-sum",
		Title:       "1. Two Sum",
		Statement:   "Given an array of integers nums and a target...",
		StarterCode: "class Solution:\n    def twoSum(self, nums, target):",
		Language:    "python3",
	}
}

func TestGenerate_FirstAttemptPrompt(t *testing.T) {
	fake := &fakeClient{completions: []string{"```python\nclass Solution: pass\n```"}}
	g := newTestGenerator(fake, 10)

	code, err := g.Generate(context.Background(), GenerationContext{Problem: twoSum()})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if code != "class Solution: pass" {
		t.Errorf("expected fences stripped, got %q", code)
	}

	// The last user message must carry statement and starter code.
	prompt := fake.lastMsgs[len(fake.lastMsgs)-1].Content
	if !strings.Contains(prompt, "Given an array of integers") {
		t.Error("first-attempt prompt missing problem statement")
	}
	if !strings.Contains(prompt, "def twoSum") {
		t.Error("first-attempt prompt missing starter code")
	}
}

func TestGenerate_RepairPromptCarriesDiagnostic(t *testing.T) {
	fake := &fakeClient{completions: []string{"fixed code"}}
	g := newTestGenerator(fake, 10)

	prior := &models.Attempt{Seq: 1, SourceCode: "bad code", Language: "python3"}
	verdict := &models.Verdict{
		Kind: models.VerdictWrongAnswer,
		Diagnostic: models.Diagnostic{
			FailingInput: "[2,7,11,15]\n9",
			Expected:     "[0,1]",
			Actual:       "[1,2]",
		},
	}

	_, err := g.Generate(context.Background(), GenerationContext{
		Problem:      twoSum(),
		PriorAttempt: prior,
		PriorVerdict: verdict,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	prompt := fake.lastMsgs[len(fake.lastMsgs)-1].Content
	for _, want := range []string{"Wrong Answer", "[2,7,11,15]", "[0,1]", "[1,2]"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("repair prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerate_EmptyCompletionIsGenerationError(t *testing.T) {
	fake := &fakeClient{completions: []string{"   \n  "}}
	g := newTestGenerator(fake, 10)

	_, err := g.Generate(context.Background(), GenerationContext{Problem: twoSum()})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !genErr.Transient {
		t.Error("empty completion should be transient")
	}
}

func TestGenerate_ClientErrorIsGenerationError(t *testing.T) {
	fake := &fakeClient{err: errors.New("connection refused")}
	g := newTestGenerator(fake, 10)

	_, err := g.Generate(context.Background(), GenerationContext{Problem: twoSum()})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !genErr.Transient {
		t.Error("plain transport error should be transient")
	}
}

func TestGenerate_APIErrorRetryableControlsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"invalid key", &llm.APIError{Message: "invalid API key", StatusCode: 401, Retryable: false}, false},
		{"server overloaded", &llm.APIError{Message: "overloaded", StatusCode: 503, Retryable: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClient{err: tt.err}
			g := newTestGenerator(fake, 10)

			_, err := g.Generate(context.Background(), GenerationContext{Problem: twoSum()})
			var genErr *GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if genErr.Transient != tt.transient {
				t.Errorf("expected Transient=%v, got %v", tt.transient, genErr.Transient)
			}
		})
	}
}

func TestUsage_Monotonic(t *testing.T) {
	fake := &fakeClient{completions: []string{"a", "b", "c"}, tokens: []int{100, 250, 50}}
	g := newTestGenerator(fake, 10)

	expected := 0
	for i, tokens := range []int{100, 250, 50} {
		prev := g.Usage()
		if _, err := g.Chat(context.Background(), "turn"); err != nil {
			t.Fatalf("Chat %d failed: %v", i, err)
		}
		expected += tokens
		if g.Usage() != expected {
			t.Errorf("after turn %d: expected %d tokens, got %d", i, expected, g.Usage())
		}
		if g.Usage() < prev {
			t.Errorf("usage decreased: %d -> %d", prev, g.Usage())
		}
	}
}

func TestHistoryCap_DropsOldestPairs(t *testing.T) {
	fake := &fakeClient{completions: []string{"reply"}}
	g := newTestGenerator(fake, 2)

	for i := 0; i < 5; i++ {
		if _, err := g.Chat(context.Background(), "turn"); err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
	}

	// system prompt + 2 retained pairs
	if got := g.HistoryLen(); got != 5 {
		t.Errorf("expected 5 retained messages, got %d", got)
	}
	if fake.lastMsgs[0].Role != "system" {
		t.Errorf("expected system prompt retained first, got role %q", fake.lastMsgs[0].Role)
	}
}

func TestConversationSummary(t *testing.T) {
	fake := &fakeClient{completions: []string{"reply"}, tokens: []int{42}}
	g := newTestGenerator(fake, 10)

	if _, err := g.Chat(context.Background(), "hello"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	s := g.ConversationSummary()
	if s.UserMessages != 1 || s.AssistantMessages != 1 {
		t.Errorf("expected 1 user / 1 assistant, got %d / %d", s.UserMessages, s.AssistantMessages)
	}
	if s.TokensUsed != 42 {
		t.Errorf("expected 42 tokens, got %d", s.TokensUsed)
	}
	if s.Model != "test-model" {
		t.Errorf("expected model name, got %q", s.Model)
	}
}
