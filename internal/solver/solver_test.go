package solver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"leetforge/internal/browser"
	"leetforge/internal/generator"
	"leetforge/pkg/models"
)

type genCall struct {
	gc generator.GenerationContext
}

type fakeGenerator struct {
	codes []string
	errs  []error
	calls []genCall
}

func (f *fakeGenerator) Generate(ctx context.Context, gc generator.GenerationContext) (string, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, genCall{gc: gc})
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx >= len(f.codes) {
		idx = len(f.codes) - 1
	}
	return f.codes[idx], nil
}

type fakeDriver struct {
	verdicts  []*models.Verdict
	errs      []error
	submitted []string
}

func (f *fakeDriver) Submit(ctx context.Context, code, language string) (*models.Verdict, error) {
	idx := len(f.submitted)
	f.submitted = append(f.submitted, code)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	vIdx := idx
	if vIdx >= len(f.verdicts) {
		vIdx = len(f.verdicts) - 1
	}
	return f.verdicts[vIdx], nil
}

type savedSolution struct {
	slug   string
	source string
}

type fakeStore struct {
	saved []savedSolution
	err   error
}

func (f *fakeStore) SaveSolution(problem *models.Problem, language, source string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, savedSolution{slug: problem.Slug, source: source})
	return nil
}

type fakeHistory struct {
	records int
	flushes int
}

func (f *fakeHistory) Record(*models.Session) { f.records++ }
func (f *fakeHistory) Flush(*models.Session)  { f.flushes++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSolver(gen Generator, driver SubmissionDriver, store SolutionStore, opts Options) *Solver {
	s := New(gen, driver, store, opts, testLogger())
	s.retryBaseDelay = time.Millisecond
	return s
}

func twoSumSession(maxAttempts int) *models.Session {
	problem := &models.Problem{
		Slug:        "two-sum",
		Title:       "1. Two Sum",
		Statement:   "Given an array of integers nums and a target...",
		StarterCode: "class Solution:\n    def twoSum(self, nums, target):",
		Language:    "python3",
	}
	return models.NewSession(problem, "python3", maxAttempts)
}

func accepted() *models.Verdict {
	return &models.Verdict{Kind: models.VerdictAccepted, Runtime: "52 ms", Memory: "16.4 MB"}
}

func wrongAnswer() *models.Verdict {
	return &models.Verdict{
		Kind: models.VerdictWrongAnswer,
		Diagnostic: models.Diagnostic{
			FailingInput: "[2,7,11,15]\n9",
			Expected:     "[0,1]",
			Actual:       "[1,2]",
			Raw:          "Wrong Answer",
		},
	}
}

func TestSolve_WrongAnswerThenAccepted(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"attempt one", "attempt two"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{wrongAnswer(), accepted()}}
	store := &fakeStore{}
	history := &fakeHistory{}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, store, Options{History: history})

	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if session.State != models.StateAccepted {
		t.Errorf("expected accepted, got %q", session.State)
	}
	if session.AttemptCount() != 2 {
		t.Errorf("expected 2 recorded attempts, got %d", session.AttemptCount())
	}

	// The second generation must carry exactly the first attempt's verdict.
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 generation calls, got %d", len(gen.calls))
	}
	repair := gen.calls[1].gc
	if repair.PriorAttempt == nil || repair.PriorAttempt.SourceCode != "attempt one" {
		t.Error("repair context missing the previous attempt's source")
	}
	if repair.PriorVerdict == nil || repair.PriorVerdict.Diagnostic.FailingInput != "[2,7,11,15]\n9" {
		t.Error("repair context missing the previous attempt's diagnostic")
	}

	if len(store.saved) != 1 || store.saved[0].source != "attempt two" {
		t.Errorf("expected accepted source persisted, got %+v", store.saved)
	}
	if history.flushes == 0 {
		t.Error("history must be flushed on the terminal transition")
	}
}

func TestSolve_SingleAttemptRuntimeErrorExhausts(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"bad code"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{{
		Kind:       models.VerdictRuntimeError,
		Diagnostic: models.Diagnostic{ErrorMessage: "IndexError", Raw: "Runtime Error"},
	}}}
	store := &fakeStore{}

	session := twoSumSession(1)
	s := newTestSolver(gen, driver, store, Options{})

	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if session.State != models.StateExhausted {
		t.Errorf("expected exhausted, got %q", session.State)
	}
	if session.AttemptCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", session.AttemptCount())
	}
	if len(store.saved) != 0 {
		t.Error("no solution may be persisted without acceptance")
	}
}

func TestSolve_AttemptsNeverExceedBudget(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{wrongAnswer()}}

	session := twoSumSession(3)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{})

	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if session.AttemptCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", session.AttemptCount())
	}
	if session.State != models.StateExhausted {
		t.Errorf("expected exhausted, got %q", session.State)
	}
}

func TestSolve_SubmissionTimeoutRetriedNotRecorded(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	driver := &fakeDriver{
		errs:     []error{&browser.SubmissionError{Cause: errors.New("no verdict"), Timeout: true}},
		verdicts: []*models.Verdict{nil, accepted()},
	}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{})

	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if session.State != models.StateAccepted {
		t.Errorf("expected accepted, got %q", session.State)
	}
	if session.AttemptCount() != 1 {
		t.Errorf("timed-out submission must not be recorded: got %d attempts", session.AttemptCount())
	}
	if session.Stats.InfraRetries != 1 {
		t.Errorf("expected 1 infrastructure retry, got %d", session.Stats.InfraRetries)
	}
	if len(driver.submitted) != 2 {
		t.Errorf("expected 2 submit calls, got %d", len(driver.submitted))
	}
}

func TestSolve_SubmissionFailsTwiceAborts(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	subErr := &browser.SubmissionError{Cause: errors.New("editor not found")}
	driver := &fakeDriver{errs: []error{subErr, subErr}}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{})

	err := s.Solve(context.Background(), session)
	if err == nil {
		t.Fatal("expected an error from the aborted session")
	}
	if session.State != models.StateInconclusive {
		t.Errorf("expected inconclusive, got %q", session.State)
	}
	if session.AttemptCount() != 0 {
		t.Errorf("failed submissions must not be recorded: got %d", session.AttemptCount())
	}
	if session.Err() == nil {
		t.Error("triggering error must be attached to the session")
	}
}

func TestSolve_GenerationTransientRetryThenSuccess(t *testing.T) {
	gen := &fakeGenerator{
		errs:  []error{&generator.GenerationError{Cause: errors.New("empty completion"), Transient: true}},
		codes: []string{"", "code"},
	}
	driver := &fakeDriver{verdicts: []*models.Verdict{accepted()}}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{GenerationRetries: 2})

	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if session.State != models.StateAccepted {
		t.Errorf("expected accepted, got %q", session.State)
	}
	if len(gen.calls) != 2 {
		t.Errorf("expected 2 generation calls, got %d", len(gen.calls))
	}
}

func TestSolve_GenerationRetriesExhaustedAborts(t *testing.T) {
	genErr := &generator.GenerationError{Cause: errors.New("model down"), Transient: true}
	gen := &fakeGenerator{errs: []error{genErr, genErr, genErr}, codes: []string{""}}
	driver := &fakeDriver{}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{GenerationRetries: 2})

	err := s.Solve(context.Background(), session)
	if err == nil {
		t.Fatal("expected an error from the aborted session")
	}
	if session.State != models.StateInconclusive {
		t.Errorf("expected inconclusive, got %q", session.State)
	}
	if len(gen.calls) != 3 {
		t.Errorf("expected 3 generation tries, got %d", len(gen.calls))
	}
	if len(driver.submitted) != 0 {
		t.Error("nothing may be submitted when generation never succeeded")
	}
}

func TestSolve_NonTransientGenerationFailureAbortsImmediately(t *testing.T) {
	genErr := &generator.GenerationError{Cause: errors.New("bad repair template")}
	gen := &fakeGenerator{errs: []error{genErr, genErr}, codes: []string{""}}

	session := twoSumSession(5)
	s := newTestSolver(gen, &fakeDriver{}, &fakeStore{}, Options{GenerationRetries: 2})

	if err := s.Solve(context.Background(), session); err == nil {
		t.Fatal("expected an error from the aborted session")
	}
	if session.State != models.StateInconclusive {
		t.Errorf("expected inconclusive, got %q", session.State)
	}
	if len(gen.calls) != 1 {
		t.Errorf("non-transient failure must not be retried: got %d calls", len(gen.calls))
	}
}

func TestSolve_TerminalSessionIsNoOp(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{accepted()}}
	store := &fakeStore{}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, store, Options{})
	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	recordsBefore := session.AttemptCount()
	if err := s.Solve(context.Background(), session); err != nil {
		t.Fatalf("re-Solve failed: %v", err)
	}
	if session.AttemptCount() != recordsBefore {
		t.Error("re-solving a terminal session must not mutate it")
	}
	if len(gen.calls) != 1 || len(driver.submitted) != 1 || len(store.saved) != 1 {
		t.Error("re-solving a terminal session must not touch collaborators")
	}
}

func TestSolve_CancellationEndsInconclusive(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{wrongAnswer()}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, &fakeStore{}, Options{})

	err := s.Solve(ctx, session)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if session.State != models.StateInconclusive {
		t.Errorf("expected inconclusive, got %q", session.State)
	}
	if !errors.Is(session.Err(), context.Canceled) {
		t.Errorf("session must carry the cancellation: %v", session.Err())
	}
}

func TestSolve_PersistFailureStillAccepts(t *testing.T) {
	gen := &fakeGenerator{codes: []string{"code"}}
	driver := &fakeDriver{verdicts: []*models.Verdict{accepted()}}
	store := &fakeStore{err: errors.New("disk full")}

	session := twoSumSession(5)
	s := newTestSolver(gen, driver, store, Options{})

	err := s.Solve(context.Background(), session)
	if err == nil {
		t.Fatal("expected the persistence failure to be reported")
	}
	if session.State != models.StateAccepted {
		t.Errorf("judge acceptance stands even when persistence fails: %q", session.State)
	}
}
