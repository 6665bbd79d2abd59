package browser

import (
	"strings"
	"testing"

	"leetforge/pkg/models"
)

func TestParseVerdict_Accepted(t *testing.T) {
	text := "Accepted\nRuntime: 52 ms\nBeats 85.1%\nMemory: 16.4 MB\nBeats 60.2%"
	v := ParseVerdict(text)

	if v.Kind != models.VerdictAccepted {
		t.Fatalf("expected Accepted, got %q", v.Kind)
	}
	if !v.Accepted() {
		t.Error("Accepted() should report true")
	}
	if v.Runtime != "52 ms" {
		t.Errorf("expected runtime '52 ms', got %q", v.Runtime)
	}
	if v.Memory != "16.4 MB" {
		t.Errorf("expected memory '16.4 MB', got %q", v.Memory)
	}
}

func TestParseVerdict_WrongAnswerDiagnostic(t *testing.T) {
	text := strings.Join([]string{
		"Wrong Answer",
		"3 / 57 testcases passed",
		"Input",
		"nums =",
		"[2,7,11,15]",
		"target =",
		"9",
		"Output",
		"[1,2]",
		"Expected",
		"[0,1]",
	}, "\n")

	v := ParseVerdict(text)
	if v.Kind != models.VerdictWrongAnswer {
		t.Fatalf("expected Wrong Answer, got %q", v.Kind)
	}
	d := v.Diagnostic
	if !strings.Contains(d.FailingInput, "[2,7,11,15]") || !strings.Contains(d.FailingInput, "9") {
		t.Errorf("failing input not captured: %q", d.FailingInput)
	}
	if d.Actual != "[1,2]" {
		t.Errorf("expected actual '[1,2]', got %q", d.Actual)
	}
	if d.Expected != "[0,1]" {
		t.Errorf("expected expected '[0,1]', got %q", d.Expected)
	}
	if d.Raw == "" {
		t.Error("raw panel text must always be preserved")
	}
}

func TestParseVerdict_RuntimeErrorTrace(t *testing.T) {
	text := strings.Join([]string{
		"Runtime Error",
		"Traceback (most recent call last):",
		"  File \"solution.py\", line 4, in twoSum",
		"IndexError: list index out of range",
		"Last Executed Input",
		"[3,3]",
		"6",
	}, "\n")

	v := ParseVerdict(text)
	if v.Kind != models.VerdictRuntimeError {
		t.Fatalf("expected Runtime Error, got %q", v.Kind)
	}
	if !strings.Contains(v.Diagnostic.ErrorMessage, "IndexError") {
		t.Errorf("error trace not captured: %q", v.Diagnostic.ErrorMessage)
	}
	if !strings.Contains(v.Diagnostic.FailingInput, "[3,3]") {
		t.Errorf("last executed input not captured: %q", v.Diagnostic.FailingInput)
	}
}

func TestParseVerdict_TimeAndMemoryLimits(t *testing.T) {
	cases := []struct {
		text string
		kind models.VerdictKind
	}{
		{"Time Limit Exceeded\nLast Executed Input\n[1,2,3]", models.VerdictTimeLimitExceeded},
		{"Memory Limit Exceeded\nLast Executed Input\n[1]", models.VerdictMemoryLimitExceeded},
	}
	for _, tc := range cases {
		v := ParseVerdict(tc.text)
		if v.Kind != tc.kind {
			t.Errorf("text %q: expected %q, got %q", tc.text, tc.kind, v.Kind)
		}
		if v.Diagnostic.FailingInput == "" {
			t.Errorf("text %q: expected failing input", tc.text)
		}
	}
}

func TestParseVerdict_CompileErrorAlias(t *testing.T) {
	for _, headline := range []string{"Compile Error", "Compilation Error"} {
		v := ParseVerdict(headline + "\nLine 3: Char 10: error: expected ';'")
		if v.Kind != models.VerdictCompileError {
			t.Errorf("headline %q: expected Compile Error, got %q", headline, v.Kind)
		}
		if !strings.Contains(v.Diagnostic.ErrorMessage, "expected ';'") {
			t.Errorf("headline %q: compiler message not captured: %q", headline, v.Diagnostic.ErrorMessage)
		}
	}
}

func TestParseVerdict_UnknownKeepsRaw(t *testing.T) {
	v := ParseVerdict("Something the site has never shown before")
	if v.Kind != models.VerdictUnknown {
		t.Fatalf("expected Unknown, got %q", v.Kind)
	}
	if v.Diagnostic.Raw != "Something the site has never shown before" {
		t.Errorf("raw text not preserved: %q", v.Diagnostic.Raw)
	}
}

func TestVerdictSettled(t *testing.T) {
	cases := []struct {
		text    string
		settled bool
	}{
		{"", false},
		{"   \n ", false},
		{"Pending", false},
		{"Judging", false},
		{"Evaluating your submission", false},
		{"Accepted\nRuntime: 40 ms", true},
		{"Wrong Answer\nInput\n[1]", true},
		{"Runtime Error", true},
		// A pending marker suppresses an otherwise final-looking headline.
		{"Judging\nAccepted", false},
		{"Some unrelated banner text", false},
	}
	for _, tc := range cases {
		if got := verdictSettled(tc.text); got != tc.settled {
			t.Errorf("verdictSettled(%q) = %v, want %v", tc.text, got, tc.settled)
		}
	}
}

func TestSplitSections(t *testing.T) {
	text := "noise before\nInput\nline a\nline b\nOutput\nout\nExpected\nexp\ntrailing"
	sections := splitSections(text)

	if got := sections["Input"]; got != "line a\nline b" {
		t.Errorf("Input section = %q", got)
	}
	if got := sections["Output"]; got != "out" {
		t.Errorf("Output section = %q", got)
	}
	if got := sections["Expected"]; got != "exp\ntrailing" {
		t.Errorf("Expected section = %q", got)
	}
}
