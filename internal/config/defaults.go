package config

// Default prompt templates. These mirror the conversational flow the agent
// relies on: a terse system contract, a first-attempt prompt carrying the
// problem statement and editor template, and a repair prompt carrying the
// failing case back to the model.

// DefaultSystemPrompt is the system message seeding every conversation.
const DefaultSystemPrompt = `You are an expert competitive programmer helping solve coding-challenge problems.
Rules:
- When asked for code, return ONLY the code. No explanations, no comments, no markdown code fences.
- Always keep the function and class signatures from the provided starter template.
- When a failing test case is provided, fix the code and again return only the corrected code.`

// DefaultFirstAttemptTemplate is rendered for the first generation of a session.
const DefaultFirstAttemptTemplate = `Here is the problem description:
{{.Statement}}

The starter template in the editor is:
{{.StarterCode}}

Write a complete solution in {{.Language}}.
Return ONLY the code, with no code fences and no explanations.`

// DefaultRepairTemplate is rendered for every retry after a failing verdict.
const DefaultRepairTemplate = `The previous code did not pass. Verdict: {{.VerdictKind}}.
{{if .FailingInput}}Failing input:
{{.FailingInput}}
{{end}}{{if .Expected}}Expected output:
{{.Expected}}
{{end}}{{if .Actual}}Actual output:
{{.Actual}}
{{end}}{{if .ErrorMessage}}Error:
{{.ErrorMessage}}
{{end}}{{if .Raw}}Full judge output:
{{.Raw}}
{{end}}
Fix the code and return ONLY the corrected code, with no code fences and no explanations.`

// DefaultWriteupTemplate asks for the post-acceptance markdown explanation.
const DefaultWriteupTemplate = `The solution was accepted. Write a markdown document for "{{.Title}}" with these sections:
1. Problem Explanation: a brief overview of the problem.
2. Solution Approach: how the accepted solution works.
3. Code Implementation: the final code.
4. Complexity Analysis: time and space complexity.
Return only the markdown document.`

func applyDefaults(cfg *Config) {
	if cfg.Agent.Language == "" {
		cfg.Agent.Language = "python3"
	}
	if cfg.Agent.MaxAttempts == 0 {
		cfg.Agent.MaxAttempts = 5
	}
	if cfg.Agent.GenerationRetries == 0 {
		cfg.Agent.GenerationRetries = 2
	}
	if cfg.Agent.HistoryCap == 0 {
		cfg.Agent.HistoryCap = 20
	}
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = "https://leetcode.com"
	}
	if cfg.Agent.SolutionsDir == "" {
		cfg.Agent.SolutionsDir = "solutions"
	}
	if cfg.Agent.JudgeTimeoutSeconds == 0 {
		cfg.Agent.JudgeTimeoutSeconds = 90
	}
	if cfg.Agent.ExtractTimeoutSeconds == 0 {
		cfg.Agent.ExtractTimeoutSeconds = 20
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.5
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 8192
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		cfg.Models[name] = model
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":2112"
	}

	if cfg.PromptTemplates.SystemPrompt == "" {
		cfg.PromptTemplates.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.PromptTemplates.FirstAttempt == "" {
		cfg.PromptTemplates.FirstAttempt = DefaultFirstAttemptTemplate
	}
	if cfg.PromptTemplates.Repair == "" {
		cfg.PromptTemplates.Repair = DefaultRepairTemplate
	}
	if cfg.PromptTemplates.Writeup == "" {
		cfg.PromptTemplates.Writeup = DefaultWriteupTemplate
	}
}
