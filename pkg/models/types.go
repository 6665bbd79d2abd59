package models

import "time"

// VerdictKind classifies the judged outcome of one submitted attempt.
type VerdictKind string

const (
	VerdictAccepted            VerdictKind = "Accepted"
	VerdictWrongAnswer         VerdictKind = "Wrong Answer"
	VerdictRuntimeError        VerdictKind = "Runtime Error"
	VerdictTimeLimitExceeded   VerdictKind = "Time Limit Exceeded"
	VerdictMemoryLimitExceeded VerdictKind = "Memory Limit Exceeded"
	VerdictCompileError        VerdictKind = "Compile Error"
	VerdictUnknown             VerdictKind = "Unknown Error"
)

// Problem is one coding challenge as extracted from the rendered page.
// Immutable once extracted.
type Problem struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Difficulty  string `json:"difficulty,omitempty"`
	Statement   string `json:"statement"`
	StarterCode string `json:"starter_code"`
	Language    string `json:"language"`
	URL         string `json:"url,omitempty"`
}

// Attempt is one candidate solution produced by the generator.
type Attempt struct {
	Seq        int       `json:"seq"`
	SourceCode string    `json:"source_code"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"created_at"`
}

// Diagnostic is the structured failure detail attached to a non-accepted
// verdict. Raw always holds the full result-panel text so nothing is lost
// when the structured fields cannot be extracted.
type Diagnostic struct {
	FailingInput string `json:"failing_input,omitempty"`
	Expected     string `json:"expected,omitempty"`
	Actual       string `json:"actual,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

// Empty reports whether no diagnostic detail was captured at all.
func (d Diagnostic) Empty() bool {
	return d.FailingInput == "" && d.Expected == "" && d.Actual == "" &&
		d.ErrorMessage == "" && d.Raw == ""
}

// Verdict is the judged outcome of one submission. Kind is never overwritten
// by secondary read-back errors; the diagnostic payload takes precedence for
// the next retry's feedback.
type Verdict struct {
	Kind       VerdictKind `json:"kind"`
	Diagnostic Diagnostic  `json:"diagnostic,omitempty"`
	Runtime    string      `json:"runtime,omitempty"`
	Memory     string      `json:"memory,omitempty"`
}

// Accepted reports whether the verdict is an acceptance.
func (v Verdict) Accepted() bool {
	return v.Kind == VerdictAccepted
}

// AttemptRecord pairs an attempt with the verdict it received.
type AttemptRecord struct {
	Attempt Attempt `json:"attempt"`
	Verdict Verdict `json:"verdict"`
}

// SessionStats tracks cost and timing for one solving session.
type SessionStats struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	TokensUsed     int           `json:"tokens_used"`
	GenerationTime time.Duration `json:"generation_time"`
	SubmissionTime time.Duration `json:"submission_time"`
	InfraRetries   int           `json:"infra_retries"`
	TotalDuration  time.Duration `json:"total_duration"`
}
