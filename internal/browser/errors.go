package browser

import "fmt"

// ExtractionError means the problem statement or editor elements could not be
// found within the bounded wait.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("problem extraction failed: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// SubmissionError means the page interaction could not complete. This is
// infrastructure failure, distinct from a legitimate failing verdict. Timeout
// is set when the judge never rendered a recognizable verdict in time.
type SubmissionError struct {
	Cause   error
	Timeout bool
}

func (e *SubmissionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("submission timed out: %v", e.Cause)
	}
	return fmt.Sprintf("submission failed: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}
