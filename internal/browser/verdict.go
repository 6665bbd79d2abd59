package browser

import (
	"strings"

	"leetforge/pkg/models"
)

// verdictMarkers maps the result-panel headline to a verdict kind. Order
// matters: the first marker found in the text wins, and more specific
// phrases come before generic ones.
var verdictMarkers = []struct {
	marker string
	kind   models.VerdictKind
}{
	{"Accepted", models.VerdictAccepted},
	{"Wrong Answer", models.VerdictWrongAnswer},
	{"Time Limit Exceeded", models.VerdictTimeLimitExceeded},
	{"Memory Limit Exceeded", models.VerdictMemoryLimitExceeded},
	{"Compile Error", models.VerdictCompileError},
	{"Compilation Error", models.VerdictCompileError},
	{"Runtime Error", models.VerdictRuntimeError},
}

// pendingMarkers indicate the judge has not settled yet.
var pendingMarkers = []string{"Pending", "Judging", "Evaluating"}

// diagnostic section headers in the result panel, in the order the site
// renders them.
var sectionHeaders = []string{"Input", "Last Executed Input", "Output", "Expected", "Stdout", "Error Message"}

// verdictSettled reports whether the result-panel text contains a final
// verdict rather than an in-flight judging state.
func verdictSettled(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, p := range pendingMarkers {
		if strings.Contains(text, p) {
			return false
		}
	}
	for _, vm := range verdictMarkers {
		if strings.Contains(text, vm.marker) {
			return true
		}
	}
	return false
}

// ParseVerdict maps result-panel text to a structured verdict. Unrecognized
// text yields an Unknown verdict with the raw panel preserved so the repair
// prompt still has something to work with.
func ParseVerdict(text string) models.Verdict {
	v := models.Verdict{Kind: models.VerdictUnknown}
	for _, vm := range verdictMarkers {
		if strings.Contains(text, vm.marker) {
			v.Kind = vm.kind
			break
		}
	}

	if v.Kind == models.VerdictAccepted {
		v.Runtime, v.Memory = parseResourceUsage(text)
		return v
	}

	v.Diagnostic = parseDiagnostic(text)
	return v
}

// parseDiagnostic extracts the Input / Output / Expected sections and any
// error trace from the panel text. Raw always carries the full text.
func parseDiagnostic(text string) models.Diagnostic {
	d := models.Diagnostic{Raw: strings.TrimSpace(text)}

	sections := splitSections(text)
	if input, ok := sections["Input"]; ok {
		d.FailingInput = input
	} else if input, ok := sections["Last Executed Input"]; ok {
		d.FailingInput = input
	}
	if actual, ok := sections["Output"]; ok {
		d.Actual = actual
	}
	if expected, ok := sections["Expected"]; ok {
		d.Expected = expected
	}

	// Error traces render as free text under the headline rather than a
	// labeled section.
	for _, marker := range []string{"Traceback", "Exception", "error:", "Error:", "panic:"} {
		if idx := strings.Index(text, marker); idx >= 0 {
			d.ErrorMessage = strings.TrimSpace(text[idx:])
			break
		}
	}

	return d
}

// splitSections cuts the panel text into labeled blocks. A line that exactly
// matches a known header starts a block; the block runs until the next
// header.
func splitSections(text string) map[string]string {
	headers := make(map[string]bool, len(sectionHeaders))
	for _, h := range sectionHeaders {
		headers[h] = true
	}

	sections := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" && len(buf) > 0 {
			if _, exists := sections[current]; !exists {
				sections[current] = strings.TrimSpace(strings.Join(buf, "\n"))
			}
		}
		buf = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if headers[trimmed] {
			flush()
			current = trimmed
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	return sections
}

// parseResourceUsage pulls the "Runtime: 52 ms" / "Memory: 16.4 MB" display
// strings out of an accepted result.
func parseResourceUsage(text string) (runtime, memory string) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "Runtime"); ok && runtime == "" {
			runtime = strings.TrimSpace(strings.TrimLeft(rest, ": "))
		}
		if rest, ok := strings.CutPrefix(trimmed, "Memory"); ok && memory == "" {
			memory = strings.TrimSpace(strings.TrimLeft(rest, ": "))
		}
	}
	return runtime, memory
}
