// Package solver drives the generate-submit-repair loop for one session until
// it reaches a terminal state.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leetforge/internal/browser"
	"leetforge/internal/generator"
	"leetforge/pkg/models"
)

// Generator produces candidate source code for a generation context.
type Generator interface {
	Generate(ctx context.Context, gc generator.GenerationContext) (string, error)
}

// SubmissionDriver submits source code to the judge and returns its verdict.
type SubmissionDriver interface {
	Submit(ctx context.Context, code, language string) (*models.Verdict, error)
}

// SolutionStore persists an accepted solution.
type SolutionStore interface {
	SaveSolution(problem *models.Problem, language, source string) error
}

// HistoryRecorder snapshots session state as the loop progresses. Record may
// buffer; Flush must leave a durable copy behind.
type HistoryRecorder interface {
	Record(session *models.Session)
	Flush(session *models.Session)
}

// Observer receives instrumentation events. All methods must be cheap and
// non-blocking.
type Observer interface {
	AttemptJudged(kind models.VerdictKind)
	SessionFinished(state models.SessionState)
	GenerationObserved(d time.Duration)
	SubmissionObserved(d time.Duration)
}

// Options configures loop behavior beyond the required collaborators.
type Options struct {
	// GenerationRetries is the number of transient generation failures
	// tolerated per attempt before the session aborts.
	GenerationRetries int
	History           HistoryRecorder
	Observer          Observer
}

const defaultRetryBaseDelay = 2 * time.Second

// Solver owns the repair loop for one session at a time. It is not safe for
// concurrent use.
type Solver struct {
	gen      Generator
	driver   SubmissionDriver
	store    SolutionStore
	history  HistoryRecorder
	observer Observer
	logger   *slog.Logger

	generationRetries int
	retryBaseDelay    time.Duration
}

// New assembles a solver from its collaborators.
func New(gen Generator, driver SubmissionDriver, store SolutionStore, opts Options, logger *slog.Logger) *Solver {
	history := opts.History
	if history == nil {
		history = noopHistory{}
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Solver{
		gen:               gen,
		driver:            driver,
		store:             store,
		history:           history,
		observer:          observer,
		logger:            logger.With("component", "solver"),
		generationRetries: opts.GenerationRetries,
		retryBaseDelay:    defaultRetryBaseDelay,
	}
}

// Solve drives the session to a terminal state. Calling it on an already
// terminal session is a no-op. The returned error is the infrastructure
// failure that made the session inconclusive, nil for accepted and exhausted
// outcomes.
func (s *Solver) Solve(ctx context.Context, session *models.Session) error {
	if session.Terminal() {
		s.logger.Info("Session already terminal, nothing to do",
			"session_id", session.ID, "state", session.State)
		return nil
	}

	logger := s.logger.With("session_id", session.ID, "slug", session.Problem.Slug)

	for session.AttemptCount() < session.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return s.abort(session, logger, err)
		}

		seq := session.NextSeq()
		logger.Info("Starting attempt", "attempt", seq, "max_attempts", session.MaxAttempts)

		code, err := s.generate(ctx, session, logger)
		if err != nil {
			return s.abort(session, logger, err)
		}

		verdict, err := s.submit(ctx, session, code, logger)
		if err != nil {
			return s.abort(session, logger, err)
		}

		attempt := models.Attempt{
			Seq:        seq,
			SourceCode: code,
			Language:   session.Language,
			CreatedAt:  time.Now(),
		}
		if err := session.Record(attempt, *verdict); err != nil {
			return s.abort(session, logger, err)
		}
		s.observer.AttemptJudged(verdict.Kind)
		s.history.Record(session)
		logger.Info("Attempt judged", "attempt", seq, "verdict", verdict.Kind)

		if verdict.Accepted() {
			return s.accept(session, code, logger)
		}
	}

	if err := session.Exhaust(); err != nil {
		return s.abort(session, logger, err)
	}
	s.finish(session, logger)
	return nil
}

// generate asks for candidate code, retrying transient generation failures up
// to the configured budget with backoff.
func (s *Solver) generate(ctx context.Context, session *models.Session, logger *slog.Logger) (string, error) {
	gc := generator.GenerationContext{Problem: session.Problem}
	if last := session.LastRecord(); last != nil {
		gc.PriorAttempt = &last.Attempt
		gc.PriorVerdict = &last.Verdict
	}

	var lastErr error
	for try := 0; try <= s.generationRetries; try++ {
		if try > 0 {
			if err := s.sleep(ctx, time.Duration(try)*s.retryBaseDelay); err != nil {
				return "", err
			}
			logger.Warn("Retrying generation", "try", try+1, "error", lastErr)
		}

		start := time.Now()
		code, err := s.gen.Generate(ctx, gc)
		s.observer.GenerationObserved(time.Since(start))
		session.Stats.GenerationTime += time.Since(start)
		if err == nil {
			return code, nil
		}
		lastErr = err

		var genErr *generator.GenerationError
		if !errors.As(err, &genErr) || !genErr.Transient || ctx.Err() != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generation failed after %d tries: %w", s.generationRetries+1, lastErr)
}

// submit sends the code to the judge. A submission-level failure is
// infrastructure, not a verdict: it is retried once without being recorded as
// an attempt.
func (s *Solver) submit(ctx context.Context, session *models.Session, code string, logger *slog.Logger) (*models.Verdict, error) {
	var lastErr error
	for try := 0; try < 2; try++ {
		if try > 0 {
			if err := s.sleep(ctx, s.retryBaseDelay); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		verdict, err := s.driver.Submit(ctx, code, session.Language)
		s.observer.SubmissionObserved(time.Since(start))
		session.Stats.SubmissionTime += time.Since(start)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		var subErr *browser.SubmissionError
		if !errors.As(err, &subErr) || ctx.Err() != nil {
			return nil, err
		}
		session.Stats.InfraRetries++
		logger.Warn("Submission infrastructure failure",
			"try", try+1, "timeout", subErr.Timeout, "error", err)
	}
	return nil, fmt.Errorf("submission failed twice: %w", lastErr)
}

// accept persists the source and marks the session accepted. A persistence
// failure does not undo the acceptance; the judge already accepted the code.
func (s *Solver) accept(session *models.Session, code string, logger *slog.Logger) error {
	saveErr := s.store.SaveSolution(session.Problem, session.Language, code)
	if err := session.Accept(); err != nil {
		return s.abort(session, logger, err)
	}
	s.finish(session, logger)

	if saveErr != nil {
		logger.Error("Accepted solution could not be persisted", "error", saveErr)
		return fmt.Errorf("solution accepted but not persisted: %w", saveErr)
	}
	return nil
}

func (s *Solver) abort(session *models.Session, logger *slog.Logger, cause error) error {
	if err := session.Abort(cause); err != nil {
		logger.Error("Abort on terminal session", "error", err)
		return cause
	}
	logger.Error("Session aborted", "error", cause, "attempts", session.AttemptCount())
	s.finish(session, logger)
	return cause
}

// finish flushes history and reports the terminal state.
func (s *Solver) finish(session *models.Session, logger *slog.Logger) {
	s.observer.SessionFinished(session.State)
	s.history.Flush(session)
	logger.Info("Session finished",
		"state", session.State,
		"attempts", session.AttemptCount(),
		"infra_retries", session.Stats.InfraRetries,
		"duration", session.Stats.TotalDuration)
}

func (s *Solver) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopHistory struct{}

func (noopHistory) Record(*models.Session) {}
func (noopHistory) Flush(*models.Session)  {}

type noopObserver struct{}

func (noopObserver) AttemptJudged(models.VerdictKind)    {}
func (noopObserver) SessionFinished(models.SessionState) {}
func (noopObserver) GenerationObserved(time.Duration)    {}
func (noopObserver) SubmissionObserved(time.Duration)    {}
