package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a solving session.
type SessionState string

const (
	// StateInProgress is the only non-terminal state.
	StateInProgress SessionState = "in_progress"
	// StateAccepted means the most recent verdict was an acceptance.
	StateAccepted SessionState = "accepted"
	// StateExhausted means the attempt budget was used up without acceptance.
	StateExhausted SessionState = "exhausted"
	// StateInconclusive means infrastructure failure or cancellation ended the
	// session before a legitimate outcome was reached.
	StateInconclusive SessionState = "inconclusive"
)

// ErrTerminal is returned when a mutation is attempted on a session that has
// already reached a terminal state.
var ErrTerminal = errors.New("session is in a terminal state")

// ErrAttemptBudget is returned when recording an attempt would exceed the
// session's attempt budget.
var ErrAttemptBudget = errors.New("attempt budget exhausted")

// Session accumulates the ordered attempt/verdict history for one problem and
// owns the terminal outcome. It is not safe for concurrent use; a session is
// driven by exactly one solver loop at a time.
type Session struct {
	ID          string          `json:"id"`
	Problem     *Problem        `json:"problem"`
	Language    string          `json:"language"`
	MaxAttempts int             `json:"max_attempts"`
	Records     []AttemptRecord `json:"records"`
	State       SessionState    `json:"state"`
	Failure     string          `json:"failure,omitempty"`
	Stats       SessionStats    `json:"stats"`

	err error
}

// NewSession creates an in-progress session for one problem.
func NewSession(problem *Problem, language string, maxAttempts int) *Session {
	return &Session{
		ID:          uuid.New().String(),
		Problem:     problem,
		Language:    language,
		MaxAttempts: maxAttempts,
		State:       StateInProgress,
		Stats:       SessionStats{StartTime: time.Now()},
	}
}

// Terminal reports whether the session has reached a terminal state.
// No transition ever leaves a terminal state.
func (s *Session) Terminal() bool {
	return s.State != StateInProgress
}

// AttemptCount returns the number of recorded attempt/verdict pairs.
// Infrastructure retries are not attempts and are never counted here.
func (s *Session) AttemptCount() int {
	return len(s.Records)
}

// LastRecord returns the most recent attempt/verdict pair, or nil.
func (s *Session) LastRecord() *AttemptRecord {
	if len(s.Records) == 0 {
		return nil
	}
	return &s.Records[len(s.Records)-1]
}

// NextSeq returns the sequence number the next attempt should carry.
func (s *Session) NextSeq() int {
	return len(s.Records) + 1
}

// Record appends an attempt/verdict pair, enforcing the attempt budget.
func (s *Session) Record(attempt Attempt, verdict Verdict) error {
	if s.Terminal() {
		return ErrTerminal
	}
	if len(s.Records) >= s.MaxAttempts {
		return ErrAttemptBudget
	}
	s.Records = append(s.Records, AttemptRecord{Attempt: attempt, Verdict: verdict})
	return nil
}

// Accept transitions the session to Accepted. It is only legal when the most
// recent recorded verdict is an acceptance; no other terminal state may carry
// an accepted verdict, and vice versa.
func (s *Session) Accept() error {
	if s.Terminal() {
		return ErrTerminal
	}
	last := s.LastRecord()
	if last == nil || !last.Verdict.Accepted() {
		return fmt.Errorf("cannot accept session %s: last verdict is not an acceptance", s.ID)
	}
	s.finish(StateAccepted, nil)
	return nil
}

// Exhaust transitions the session to Exhausted after the attempt budget is
// used up without acceptance.
func (s *Session) Exhaust() error {
	if s.Terminal() {
		return ErrTerminal
	}
	if last := s.LastRecord(); last != nil && last.Verdict.Accepted() {
		return fmt.Errorf("cannot exhaust session %s: last verdict is an acceptance", s.ID)
	}
	s.finish(StateExhausted, nil)
	return nil
}

// Abort transitions the session to Inconclusive with the triggering error
// attached. Partial history is preserved.
func (s *Session) Abort(cause error) error {
	if s.Terminal() {
		return ErrTerminal
	}
	s.finish(StateInconclusive, cause)
	return nil
}

// Err returns the error that ended an inconclusive session, if any.
func (s *Session) Err() error {
	return s.err
}

func (s *Session) finish(state SessionState, cause error) {
	s.State = state
	s.err = cause
	if cause != nil {
		s.Failure = cause.Error()
	}
	s.Stats.EndTime = time.Now()
	s.Stats.TotalDuration = s.Stats.EndTime.Sub(s.Stats.StartTime)
}
